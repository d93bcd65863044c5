package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/avencia/agentmarket/internal/domain"
)

// Dispatcher decouples the matching engine from notification delivery. Offer
// accepts decision records without blocking; a drain goroutine started by Run
// formats them and hands them to the Notifier. When the buffer is full,
// records are dropped rather than stalling the drain worker upstream.
type Dispatcher struct {
	notifier *Notifier
	records  chan domain.DecisionRecord
	dropped  atomic.Int64
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given buffer size. A size of
// zero or less defaults to 256.
func NewDispatcher(notifier *Notifier, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		notifier: notifier,
		records:  make(chan domain.DecisionRecord, buffer),
		logger:   logger.With(slog.String("component", "notify_dispatcher")),
	}
}

// Offer queues a record for delivery. It never blocks; when the buffer is
// full the record is counted as dropped.
func (d *Dispatcher) Offer(rec domain.DecisionRecord) {
	select {
	case d.records <- rec:
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("notification buffer full, record dropped",
			slog.String("decision_id", rec.ID),
			slog.Int64("dropped_total", n),
		)
	}
}

// Dropped returns the number of records discarded because the buffer was
// full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run drains queued records until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("notify dispatcher started")
	defer d.logger.Info("notify dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-d.records:
			d.deliver(ctx, rec)
		}
	}
}

// deliver maps a decision record onto an event type and sends it.
func (d *Dispatcher) deliver(ctx context.Context, rec domain.DecisionRecord) {
	event, title := classify(rec)
	if err := d.notifier.Notify(ctx, event, title, formatRecord(rec)); err != nil {
		d.logger.Warn("notification delivery failed",
			slog.String("decision_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func classify(rec domain.DecisionRecord) (event, title string) {
	switch {
	case rec.Settlement == domain.SettlementFailed:
		return EventSettlementFailure, "Settlement failed"
	case rec.Decision == domain.VerdictBuy:
		return EventPurchase, "Purchase settled"
	default:
		return EventDecision, "Item ignored"
	}
}

func formatRecord(rec domain.DecisionRecord) string {
	msg := fmt.Sprintf("agent %s on %q (price %d): %s",
		rec.AgentID, rec.ItemName, rec.ItemPrice, rec.Decision)
	if rec.Reasoning != "" {
		msg += "\n" + rec.Reasoning
	}
	if rec.TxID != "" {
		msg += fmt.Sprintf("\ntx %s", rec.TxID)
	}
	if rec.SettlementErr != "" {
		msg += "\nerror: " + rec.SettlementErr
	}
	return msg
}
