package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/avencia/agentmarket/internal/contract"
	"github.com/avencia/agentmarket/internal/domain"
)

// listingsChannel carries listing state changes to live observers.
const listingsChannel = "listings"

// ListingService exposes read and close operations on the listing contracts
// owned by the contract manager. Closing a listing publishes the final state
// on the "listings" channel.
type ListingService struct {
	items    domain.ItemStore
	listings *contract.Manager
	bus      domain.SignalBus // optional
	logger   *slog.Logger
}

func NewListingService(items domain.ItemStore, listings *contract.Manager, bus domain.SignalBus, logger *slog.Logger) *ListingService {
	return &ListingService{
		items:    items,
		listings: listings,
		bus:      bus,
		logger:   logger,
	}
}

// Status returns the listing state for an item plus a human-readable status
// line. It verifies the item exists so a missing item and a missing listing
// produce distinct errors.
func (s *ListingService) Status(ctx context.Context, itemID string) (domain.ListingStatus, string, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return domain.ListingStatus{}, "", fmt.Errorf("listing_service: item %q: %w", itemID, err)
	}
	st, msg, err := s.listings.StatusFor(itemID)
	if err != nil {
		return domain.ListingStatus{}, "", fmt.Errorf("listing_service: status for %q: %w", itemID, err)
	}
	return st, msg, nil
}

// Close manually closes an item's listing and returns the final status line.
// Closing an already closed listing is a no-op.
func (s *ListingService) Close(ctx context.Context, itemID string) (domain.ListingStatus, string, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return domain.ListingStatus{}, "", fmt.Errorf("listing_service: item %q: %w", itemID, err)
	}
	msg, err := s.listings.CloseFor(ctx, itemID)
	if err != nil {
		return domain.ListingStatus{}, "", fmt.Errorf("listing_service: close %q: %w", itemID, err)
	}
	st, _, _ := s.listings.StatusFor(itemID)

	s.publishState(ctx, itemID, st)

	s.logger.InfoContext(ctx, "listing_service: listing closed",
		slog.String("item_id", itemID),
		slog.String("status", msg),
	)
	return st, msg, nil
}

// publishState pushes a listing snapshot to the signal bus. Failures are
// logged and dropped; live feeds are best effort.
func (s *ListingService) publishState(ctx context.Context, itemID string, st domain.ListingStatus) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(struct {
		ItemID string `json:"item_id"`
		domain.ListingStatus
	}{ItemID: itemID, ListingStatus: st})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, listingsChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "listing_service: publish failed",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
}
