package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avencia/agentmarket/internal/contract"
	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger/memledger"
	"github.com/avencia/agentmarket/internal/service"
	"github.com/avencia/agentmarket/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires real services over in-memory stores so handler tests cover
// the full request path below the middleware chain.
type fixture struct {
	mux      *http.ServeMux
	chain    *memledger.Ledger
	items    domain.ItemStore
	listings *contract.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	chain := memledger.New()
	agents := memory.NewAgentStore()
	items := memory.NewItemStore()
	decisions := memory.NewDecisionStore()
	logger := testLogger()

	mgr := contract.NewManager(chain, items, nil, time.Second, logger)

	agentSvc := service.NewAgentService(agents, items, chain, nil, nil, nil, logger)
	itemSvc := service.NewItemService(items, agents, nil, nil, "operator", logger)
	listingSvc := service.NewListingService(items, mgr, nil, logger)
	decisionSvc := service.NewDecisionService(decisions)

	agentH := NewAgentHandler(agentSvc, logger)
	itemH := NewItemHandler(itemSvc, logger)
	listingH := NewListingHandler(listingSvc, logger)
	decisionH := NewDecisionHandler(decisionSvc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/agents", agentH.CreateAgent)
	mux.HandleFunc("GET /api/agents", agentH.ListAgents)
	mux.HandleFunc("GET /api/agents/{id}", agentH.GetAgent)
	mux.HandleFunc("GET /api/agents/{id}/balance", agentH.GetAgentBalance)
	mux.HandleFunc("POST /api/agents/items", itemH.CreateItem)
	mux.HandleFunc("GET /api/agents/items", itemH.ListItems)
	mux.HandleFunc("GET /api/agents/items/{id}", itemH.GetItem)
	mux.HandleFunc("DELETE /api/agents/items/{id}", itemH.DeleteItem)
	mux.HandleFunc("GET /api/items/{id}/listing", listingH.GetListing)
	mux.HandleFunc("POST /api/items/{id}/listing/close", listingH.CloseListing)
	mux.HandleFunc("GET /api/decisions", decisionH.ListDecisions)
	mux.HandleFunc("GET /api/decisions/{id}", decisionH.GetDecision)
	mux.HandleFunc("GET /api/health", NewHealthHandler(logger).HealthCheck)
	mux.HandleFunc("GET /api/status", NewStatusHandler("dev", "memory", nil).GetStatus)

	return &fixture{mux: mux, chain: chain, items: items, listings: mgr}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestCreateAgentValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/agents", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/agents", `{"prompt":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndGetAgent(t *testing.T) {
	f := newFixture(t)
	f.chain.Fund("wallet-1", 900)

	rec := f.do(t, http.MethodPost, "/api/agents",
		`{"prompt":"buy cameras under 500","user_wallet_id":"wallet-1","model_id":"m1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var agent domain.Agent
	decode(t, rec, &agent)
	assert.NotEmpty(t, agent.ID)
	assert.Equal(t, int64(900), agent.WalletBalance)

	rec = f.do(t, http.MethodGet, "/api/agents/"+agent.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/agents/"+agent.ID+"/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bal map[string]any
	decode(t, rec, &bal)
	assert.Equal(t, float64(900), bal["balance"])

	rec = f.do(t, http.MethodGet, "/api/agents/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAgentsEnvelope(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{
		`{"prompt":"a","user_wallet_id":"w1"}`,
		`{"prompt":"b","user_wallet_id":"w2"}`,
	} {
		rec := f.do(t, http.MethodPost, "/api/agents", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/agents?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listAgentsResponse
	decode(t, rec, &resp)
	assert.Len(t, resp.Agents, 1)
	assert.Equal(t, int64(2), resp.Total)
	assert.Equal(t, 1, resp.Limit)
}

func TestItemLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/agents/items",
		`{"name":"camera","description":"35mm","price":300,"seller_wallet":"seller-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var item domain.Item
	decode(t, rec, &item)
	assert.NotEmpty(t, item.ID)

	rec = f.do(t, http.MethodGet, "/api/agents/items/"+item.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/agents/items/"+item.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/agents/items/"+item.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateItemValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/agents/items", `{"name":"camera","price":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/agents/items", `{"price":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListingEndpoints(t *testing.T) {
	f := newFixture(t)

	item := domain.Item{ID: "i1", Name: "camera", Price: 200, SellerWallet: "seller"}
	require.NoError(t, f.items.Create(context.Background(), item))

	// No listing yet.
	rec := f.do(t, http.MethodGet, "/api/items/i1/listing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown item.
	rec = f.do(t, http.MethodGet, "/api/items/nope/listing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := f.listings.OpenListingFor(context.Background(), item, item.SellerWallet)
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/api/items/i1/listing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp listingResponse
	decode(t, rec, &resp)
	assert.True(t, resp.IsOpen)
	assert.Equal(t, int64(200), resp.TargetAmount)

	rec = f.do(t, http.MethodPost, "/api/items/i1/listing/close", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.False(t, resp.IsOpen)
	assert.Contains(t, resp.Message, "closed")
}

func TestDecisionEndpoints(t *testing.T) {
	f := newFixture(t)
	store := memory.NewDecisionStore()
	h := NewDecisionHandler(service.NewDecisionService(store), testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/decisions", h.ListDecisions)
	mux.HandleFunc("GET /api/decisions/{id}", h.GetDecision)
	f.mux = mux

	_, _, err := store.Register(context.Background(), domain.DecisionRecord{
		ID: "d1", AgentID: "a1", ItemID: "i1", Decision: domain.VerdictBuy,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/decisions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp listDecisionsResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Decisions, 1)
	assert.Equal(t, int64(1), resp.Total)

	rec = f.do(t, http.MethodGet, "/api/decisions?agent_id=a1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.Len(t, resp.Decisions, 1)

	rec = f.do(t, http.MethodGet, "/api/decisions?agent_id=other", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Empty(t, resp.Decisions)

	rec = f.do(t, http.MethodGet, "/api/decisions/d1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/decisions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	decode(t, rec, &health)
	assert.Equal(t, "ok", health["status"])

	rec = f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	decode(t, rec, &status)
	assert.Equal(t, "dev", status["mode"])
	assert.Equal(t, "memory", status["ledger_backend"])
	_, hasQueue := status["queue_depth"]
	assert.False(t, hasQueue)
}
