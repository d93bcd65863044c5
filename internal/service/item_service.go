package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avencia/agentmarket/internal/domain"
)

// ItemService handles item registration and removal. Registering an item
// fans it out to every active agent via the dispatcher.
type ItemService struct {
	items      domain.ItemStore
	agents     domain.AgentStore
	dispatcher Dispatcher
	audit      domain.AuditStore
	// operatorWallet receives listing payments for items registered without
	// a seller wallet of their own.
	operatorWallet string
	logger         *slog.Logger
}

func NewItemService(
	items domain.ItemStore,
	agents domain.AgentStore,
	dispatcher Dispatcher,
	audit domain.AuditStore,
	operatorWallet string,
	logger *slog.Logger,
) *ItemService {
	return &ItemService{
		items:          items,
		agents:         agents,
		dispatcher:     dispatcher,
		audit:          audit,
		operatorWallet: operatorWallet,
		logger:         logger,
	}
}

// RegisterItem validates and stores a new item, then enqueues it against
// every active agent.
func (s *ItemService) RegisterItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" {
		return domain.Item{}, fmt.Errorf("item_service: %w: name must not be empty", domain.ErrInvalidInput)
	}
	if item.Price <= 0 {
		return domain.Item{}, fmt.Errorf("item_service: %w: price must be positive, got %d", domain.ErrInvalidInput, item.Price)
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.SellerWallet == "" {
		item.SellerWallet = s.operatorWallet
	}
	item.ContractInstanceID = ""
	item.CreatedAt = time.Now().UTC()

	if err := s.items.Create(ctx, item); err != nil {
		return domain.Item{}, fmt.Errorf("item_service: create %q: %w", item.ID, err)
	}

	s.auditLog(ctx, "item_registered", map[string]any{
		"item_id": item.ID,
		"name":    item.Name,
		"price":   item.Price,
	})

	if s.dispatcher != nil {
		agents, err := s.agents.List(ctx, domain.ListOpts{})
		if err != nil {
			s.logger.WarnContext(ctx, "item_service: agent fan-out skipped",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()),
			)
		} else {
			s.dispatcher.ProcessNewItem(item, agents)
		}
	}

	s.logger.InfoContext(ctx, "item_service: item registered",
		slog.String("item_id", item.ID),
		slog.String("name", item.Name),
		slog.Int64("price", item.Price),
	)
	return item, nil
}

// GetItem retrieves an item by id.
func (s *ItemService) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return domain.Item{}, fmt.Errorf("item_service: get %q: %w", id, err)
	}
	return item, nil
}

// ListItems returns items in registration order.
func (s *ItemService) ListItems(ctx context.Context, opts domain.ListOpts) ([]domain.Item, error) {
	items, err := s.items.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("item_service: list: %w", err)
	}
	return items, nil
}

// DeleteItem removes an item from the market. Decision records referencing
// the item are kept; the log is append-only.
func (s *ItemService) DeleteItem(ctx context.Context, id string) error {
	if err := s.items.Delete(ctx, id); err != nil {
		return fmt.Errorf("item_service: delete %q: %w", id, err)
	}
	s.auditLog(ctx, "item_deleted", map[string]any{"item_id": id})
	s.logger.InfoContext(ctx, "item_service: item deleted", slog.String("item_id", id))
	return nil
}

// Count returns the total number of items.
func (s *ItemService) Count(ctx context.Context) (int64, error) {
	count, err := s.items.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("item_service: count: %w", err)
	}
	return count, nil
}

func (s *ItemService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "item_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
