package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/avencia/agentmarket/internal/domain"
)

// AgentService defines the methods the agent handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type AgentService interface {
	CreateAgent(ctx context.Context, agent domain.Agent) (domain.Agent, error)
	GetAgent(ctx context.Context, id string) (domain.Agent, error)
	ListAgents(ctx context.Context, opts domain.ListOpts) ([]domain.Agent, error)
	Count(ctx context.Context) (int64, error)
	WalletBalance(ctx context.Context, wallet string) (int64, error)
}

// AgentHandler serves buyer agent HTTP endpoints.
type AgentHandler struct {
	agents AgentService
	logger *slog.Logger
}

// NewAgentHandler creates an AgentHandler with the given service and logger.
func NewAgentHandler(agents AgentService, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		agents: agents,
		logger: logger,
	}
}

// createAgentRequest is the POST /api/agents payload.
type createAgentRequest struct {
	Prompt       string `json:"prompt"`
	ModelID      string `json:"model_id"`
	ProviderID   string `json:"provider_id"`
	WalletID     string `json:"user_wallet_id"`
	WalletSecret string `json:"wallet_secret"`
}

// CreateAgent registers a new buyer agent and enqueues it against every item
// already on the market.
// POST /api/agents
func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	agent, err := h.agents.CreateAgent(r.Context(), domain.Agent{
		Prompt:       req.Prompt,
		ModelID:      req.ModelID,
		ProviderID:   req.ProviderID,
		WalletID:     req.WalletID,
		WalletSecret: req.WalletSecret,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create agent failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

// listAgentsResponse wraps the list endpoint output with metadata.
type listAgentsResponse struct {
	Agents []domain.Agent `json:"agents"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListAgents returns registered agents with pagination.
// GET /api/agents?limit=50&offset=0
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	agents, err := h.agents.ListAgents(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list agents failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}

	total, err := h.agents.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count agents failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count agents")
		return
	}

	writeJSON(w, http.StatusOK, listAgentsResponse{
		Agents: agents,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetAgent returns a single agent by its ID.
// GET /api/agents/{id}
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing agent id")
		return
	}

	agent, err := h.agents.GetAgent(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

// GetAgentBalance returns the live wallet balance for an agent, served from
// the balance cache when fresh.
// GET /api/agents/{id}/balance
func (h *AgentHandler) GetAgentBalance(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing agent id")
		return
	}

	agent, err := h.agents.GetAgent(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	balance, err := h.agents.WalletBalance(r.Context(), agent.WalletID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: wallet balance failed",
			slog.String("agent_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read wallet balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": id,
		"wallet":   agent.WalletID,
		"balance":  balance,
	})
}
