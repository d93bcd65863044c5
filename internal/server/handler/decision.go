package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/avencia/agentmarket/internal/domain"
)

// DecisionService defines the methods the decision handler requires from the
// service layer.
type DecisionService interface {
	GetDecision(ctx context.Context, id string) (domain.DecisionRecord, error)
	ListDecisions(ctx context.Context, opts domain.ListOpts) ([]domain.DecisionRecord, error)
	ListByAgent(ctx context.Context, agentID string, opts domain.ListOpts) ([]domain.DecisionRecord, error)
	Count(ctx context.Context) (int64, error)
}

// DecisionHandler serves read access to the decision log.
type DecisionHandler struct {
	decisions DecisionService
	logger    *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler with the given service and logger.
func NewDecisionHandler(decisions DecisionService, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{
		decisions: decisions,
		logger:    logger,
	}
}

// listDecisionsResponse wraps the list endpoint output with metadata.
type listDecisionsResponse struct {
	Decisions []domain.DecisionRecord `json:"decisions"`
	Total     int64                   `json:"total"`
	Limit     int                     `json:"limit"`
	Offset    int                     `json:"offset"`
}

// ListDecisions returns decision records in append order. An optional
// agent_id query parameter restricts the log to one agent.
// GET /api/decisions?limit=50&offset=0&agent_id=...
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		recs []domain.DecisionRecord
		err  error
	)
	if agentID := r.URL.Query().Get("agent_id"); agentID != "" {
		recs, err = h.decisions.ListByAgent(r.Context(), agentID, opts)
	} else {
		recs, err = h.decisions.ListDecisions(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list decisions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}

	total, err := h.decisions.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count decisions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count decisions")
		return
	}

	writeJSON(w, http.StatusOK, listDecisionsResponse{
		Decisions: recs,
		Total:     total,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}

// GetDecision returns a single decision record by its ID.
// GET /api/decisions/{id}
func (h *DecisionHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing decision id")
		return
	}

	rec, err := h.decisions.GetDecision(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
