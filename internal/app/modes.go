package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avencia/agentmarket/internal/contract"
	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/matching"
	"github.com/avencia/agentmarket/internal/notify"
	"github.com/avencia/agentmarket/internal/poller"
	"github.com/avencia/agentmarket/internal/server"
	"github.com/avencia/agentmarket/internal/server/handler"
	"github.com/avencia/agentmarket/internal/server/ws"
	"github.com/avencia/agentmarket/internal/service"
)

// pollerLockTTL bounds how long a crashed poller instance keeps other
// instances out.
const pollerLockTTL = time.Hour

// ServeMode starts the matching engine, the notification dispatcher, the
// WebSocket hub, and the HTTP API. It is also the shape of dev mode, just
// over memory stores and the in-process ledger.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startMarketplace(ctx, g, deps)

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		a.startArchiveLoop(ctx, g, deps)
	}

	return g.Wait()
}

// PollMode runs only the blockchain event poller. When Redis is available a
// distributed lock guarantees a single active poller across process
// instances.
func (a *App) PollMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting poll mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPoller(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs a one-shot export of old decision records and audit
// entries to object storage, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: object storage is not configured")
	}
	return a.archiveOnce(ctx, deps)
}

// FullMode starts every subsystem: the marketplace, the event poller (when
// enabled), and the archive loop (when enabled).
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startMarketplace(ctx, g, deps)

	if a.cfg.Poller.Enabled {
		a.startPoller(ctx, g, deps)
	}
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		a.startArchiveLoop(ctx, g, deps)
	}

	return g.Wait()
}

// startMarketplace wires the listing manager, matching engine, notification
// dispatcher, services, WebSocket hub, and HTTP server onto the errgroup.
func (a *App) startMarketplace(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	mgr := contract.NewManager(deps.Chain, deps.Items, deps.Audit, a.cfg.Ledger.CallTimeout.Duration, a.logger)

	// Notification dispatcher: decouples settlement from delivery with a
	// bounded channel.
	dispatcher := notify.NewDispatcher(deps.Notifier, a.cfg.Notify.Buffer, a.logger)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	engineOpts := []matching.Option{
		matching.WithRecordSink(dispatcher),
		matching.WithDecideTimeout(a.cfg.Matching.DecideTimeout.Duration),
		matching.WithDedupTTL(a.cfg.Matching.DedupTTL.Duration),
	}
	if deps.SignalBus != nil {
		engineOpts = append(engineOpts, matching.WithSignalBus(deps.SignalBus))
	}
	engine := matching.NewEngine(deps.Decider, mgr, deps.Agents, deps.Decisions, a.logger, engineOpts...)
	g.Go(func() error {
		return engine.Run(ctx)
	})

	// Services.
	agentSvc := service.NewAgentService(deps.Agents, deps.Items, deps.Chain, deps.Balances, engine, deps.Audit, a.logger)
	itemSvc := service.NewItemService(deps.Items, deps.Agents, engine, deps.Audit, a.cfg.Ledger.OperatorWallet, a.logger)
	listingSvc := service.NewListingService(deps.Items, mgr, deps.SignalBus, a.logger)
	decisionSvc := service.NewDecisionService(deps.Decisions)

	// WebSocket hub: requires the Redis signal bus; dev mode runs without
	// a live stream.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:          a.cfg.Mode,
			LedgerBackend: a.cfg.Ledger.Backend,
			StartedAt:     time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIToken:    a.cfg.Server.ApiToken,
			RateLimiter: deps.RateLimiter,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		}, server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Ledger.Backend, engine),
			Agents:    handler.NewAgentHandler(agentSvc, a.logger),
			Items:     handler.NewItemHandler(itemSvc, a.logger),
			Listings:  handler.NewListingHandler(listingSvc, a.logger),
			Decisions: handler.NewDecisionHandler(decisionSvc, a.logger),
		}, hub, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}
}

// startPoller adds the event poller to the errgroup, guarded by the Redis
// lock manager when one is wired.
func (a *App) startPoller(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	secret := a.cfg.Poller.WalletSecret
	if secret == "" {
		secret = deps.OperatorSecret
	}

	responder := domain.Agent{
		ID:       "responder",
		Prompt:   a.cfg.Poller.ResponderPrompt,
		WalletID: a.cfg.Poller.TrackedWallet,
	}

	p := poller.New(deps.Chain, deps.Decider, deps.Audit, poller.Config{
		TrackedWallet: a.cfg.Poller.TrackedWallet,
		WalletSecret:  secret,
		Interval:      a.cfg.Poller.Interval.Duration,
		ReplyAmount:   a.cfg.Poller.ReplyAmount,
		Responder:     responder,
	}, a.logger)

	g.Go(func() error {
		if deps.LockManager != nil {
			unlock, err := deps.LockManager.Acquire(ctx, "poller", pollerLockTTL)
			if err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					a.logger.WarnContext(ctx, "poller lock held by another instance, not polling")
					<-ctx.Done()
					return ctx.Err()
				}
				return fmt.Errorf("poll: acquire lock: %w", err)
			}
			defer unlock()
		}
		return p.Run(ctx)
	})
}

// startArchiveLoop adds a periodic cold-storage export to the errgroup.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := a.archiveOnce(ctx, deps); err != nil {
					a.logger.ErrorContext(ctx, "archive cycle failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// archiveOnce exports records older than the retention window to object
// storage. Archived rows stay in the database; deletion is a separate,
// explicit step after the export has been verified.
func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	decisions, err := deps.Archiver.ArchiveDecisions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive decisions: %w", err)
	}
	audit, err := deps.Archiver.ArchiveAuditLog(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive audit log: %w", err)
	}

	a.logger.InfoContext(ctx, "archive cycle complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("decisions", decisions),
		slog.Int64("audit_entries", audit),
	)
	return nil
}
