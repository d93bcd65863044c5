package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/avencia/agentmarket/internal/domain"
)

// ListingService defines the methods the listing handler requires from the
// service layer.
type ListingService interface {
	Status(ctx context.Context, itemID string) (domain.ListingStatus, string, error)
	Close(ctx context.Context, itemID string) (domain.ListingStatus, string, error)
}

// ListingHandler serves listing contract HTTP endpoints.
type ListingHandler struct {
	listings ListingService
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler with the given service and logger.
func NewListingHandler(listings ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		logger:   logger,
	}
}

// listingResponse carries a listing snapshot plus its human-readable status
// line.
type listingResponse struct {
	ItemID string `json:"item_id"`
	domain.ListingStatus
	Message string `json:"message"`
}

// GetListing returns the listing status for an item.
// GET /api/items/{id}/listing
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	st, msg, err := h.listings.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listingResponse{
		ItemID:        id,
		ListingStatus: st,
		Message:       msg,
	})
}

// CloseListing manually closes an item's listing. Closing a listing that is
// already closed is a no-op.
// POST /api/items/{id}/listing/close
func (h *ListingHandler) CloseListing(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	st, msg, err := h.listings.Close(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: close listing failed",
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listingResponse{
		ItemID:        id,
		ListingStatus: st,
		Message:       msg,
	})
}
