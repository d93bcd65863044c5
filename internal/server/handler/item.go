package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/avencia/agentmarket/internal/domain"
)

// ItemService defines the methods the item handler requires from the service
// layer.
type ItemService interface {
	RegisterItem(ctx context.Context, item domain.Item) (domain.Item, error)
	GetItem(ctx context.Context, id string) (domain.Item, error)
	ListItems(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error)
	DeleteItem(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// ItemHandler serves item HTTP endpoints.
type ItemHandler struct {
	items  ItemService
	logger *slog.Logger
}

// NewItemHandler creates an ItemHandler with the given service and logger.
func NewItemHandler(items ItemService, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		items:  items,
		logger: logger,
	}
}

// createItemRequest is the POST /api/agents/items payload.
type createItemRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        int64  `json:"price"`
	SellerID     string `json:"seller_id"`
	SellerWallet string `json:"seller_wallet"`
}

// CreateItem registers a new item for sale and enqueues it against every
// active agent.
// POST /api/agents/items
func (h *ItemHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	item, err := h.items.RegisterItem(r.Context(), domain.Item{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		SellerID:     req.SellerID,
		SellerWallet: req.SellerWallet,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create item failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// listItemsResponse wraps the list endpoint output with metadata.
type listItemsResponse struct {
	Items  []domain.Item `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListItems returns items for sale with pagination.
// GET /api/agents/items?limit=50&offset=0
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	items, err := h.items.ListItems(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list items failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	total, err := h.items.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count items failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count items")
		return
	}

	writeJSON(w, http.StatusOK, listItemsResponse{
		Items:  items,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetItem returns a single item by its ID.
// GET /api/agents/items/{id}
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	item, err := h.items.GetItem(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// DeleteItem removes an item from the market.
// DELETE /api/agents/items/{id}
func (h *ItemHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	if err := h.items.DeleteItem(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
