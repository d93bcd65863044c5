package contract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger"
)

// Manager owns the mapping from item id to listing contract instance.
// Instances are created lazily on the first BUY decision for an item and are
// never reused: a closed listing stays closed, and the next sale attempt on
// a different item gets a fresh instance.
//
// The manager itself is safe for concurrent use, but the create-if-absent
// step in OpenListingFor relies on the matching engine's single drain worker
// for its idempotency guarantee across an open-then-settle sequence.
type Manager struct {
	chain       ledger.Client
	items       domain.ItemStore
	audit       domain.AuditStore
	callTimeout time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	instances map[string]*Listing // item id -> contract instance
}

// NewManager creates a Manager. The audit store may be nil, in which case
// listing events are only logged.
func NewManager(chain ledger.Client, items domain.ItemStore, audit domain.AuditStore, callTimeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		chain:       chain,
		items:       items,
		audit:       audit,
		callTimeout: callTimeout,
		logger:      logger.With(slog.String("component", "listing_manager")),
		instances:   make(map[string]*Listing),
	}
}

// OpenListingFor deploys and opens a listing contract for the item, or
// returns the existing instance's status when the item already has one.
// Calling it twice for the same item yields the same instance id both times.
func (m *Manager) OpenListingFor(ctx context.Context, item domain.Item, sellerWallet string) (domain.ListingStatus, error) {
	m.mu.Lock()
	inst, ok := m.instances[item.ID]
	if !ok {
		inst = NewListing(uuid.New().String(), m.chain, m.callTimeout)
		m.instances[item.ID] = inst
	}
	m.mu.Unlock()

	if ok {
		st, _ := inst.Status()
		return st, nil
	}

	msg, err := inst.Open(sellerWallet, item.Price)
	if err != nil {
		// Roll the map entry back so a later attempt can deploy cleanly.
		m.mu.Lock()
		delete(m.instances, item.ID)
		m.mu.Unlock()
		return domain.ListingStatus{}, fmt.Errorf("contract: open listing for item %s: %w", item.ID, err)
	}

	if err := m.items.SetContractInstance(ctx, item.ID, inst.ID); err != nil {
		m.logger.WarnContext(ctx, "failed to record contract instance on item",
			slog.String("item_id", item.ID),
			slog.String("instance_id", inst.ID),
			slog.String("error", err.Error()),
		)
	}

	m.logger.InfoContext(ctx, "listing opened",
		slog.String("item_id", item.ID),
		slog.String("instance_id", inst.ID),
		slog.String("status", msg),
	)
	m.auditLog(ctx, "listing_opened", map[string]any{
		"item_id":     item.ID,
		"instance_id": inst.ID,
		"target":      item.Price,
		"wallet":      sellerWallet,
	})

	st, _ := inst.Status()
	return st, nil
}

// SettlePayment routes a buyer payment to the item's contract instance. It
// fails with domain.ErrNoListing when the item was never opened, which
// indicates an earlier open failed silently and is logged loudly.
func (m *Manager) SettlePayment(ctx context.Context, itemID, buyerWallet, buyerSecret string, amount int64) (string, error) {
	inst, ok := m.instance(itemID)
	if !ok {
		m.logger.ErrorContext(ctx, "settlement attempted for item without listing",
			slog.String("item_id", itemID),
		)
		return "", domain.ErrNoListing
	}

	msg, err := inst.ProcessPayment(ctx, buyerWallet, buyerSecret, amount)
	if err != nil {
		return "", err
	}

	m.auditLog(ctx, "payment_settled", map[string]any{
		"item_id":     itemID,
		"instance_id": inst.ID,
		"buyer":       buyerWallet,
		"amount":      amount,
		"status":      msg,
	})
	return msg, nil
}

// StatusFor returns the listing status for an item.
func (m *Manager) StatusFor(itemID string) (domain.ListingStatus, string, error) {
	inst, ok := m.instance(itemID)
	if !ok {
		return domain.ListingStatus{}, "", domain.ErrNoListing
	}
	st, msg := inst.Status()
	return st, msg, nil
}

// CloseFor manually closes an item's listing. Closing an already closed
// listing is a no-op.
func (m *Manager) CloseFor(ctx context.Context, itemID string) (string, error) {
	inst, ok := m.instance(itemID)
	if !ok {
		return "", domain.ErrNoListing
	}
	msg, err := inst.Close()
	if err != nil {
		return "", err
	}
	m.auditLog(ctx, "listing_closed", map[string]any{
		"item_id":     itemID,
		"instance_id": inst.ID,
		"status":      msg,
	})
	return msg, nil
}

func (m *Manager) instance(itemID string) (*Listing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[itemID]
	return inst, ok
}

func (m *Manager) auditLog(ctx context.Context, event string, detail map[string]any) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Log(ctx, event, detail); err != nil {
		m.logger.WarnContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
