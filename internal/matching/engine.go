// Package matching implements the item-agent dispatch engine: a FIFO work
// queue of (agent, item) pairs drained by a single worker. Strict sequential
// draining is what makes the listing manager's create-if-absent step safe:
// at most one pair is being settled at any instant.
package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avencia/agentmarket/internal/contract"
	"github.com/avencia/agentmarket/internal/decide"
	"github.com/avencia/agentmarket/internal/domain"
)

// decisionsStream is the durable stream decision records are appended to.
const decisionsStream = "decisions"

// Pair is one unit of work: an agent considering an item.
type Pair struct {
	Agent domain.Agent
	Item  domain.Item
}

func (p Pair) key() string {
	return p.Agent.ID + ":" + p.Item.ID
}

// RecordSink receives decision records for delivery to external observers.
// Offer must never block; delivery is fire-and-forget.
type RecordSink interface {
	Offer(rec domain.DecisionRecord)
}

// Engine serializes consideration of (agent, item) pairs. Enqueue appends to
// the FIFO queue; the drain loop started by Run pops pairs one at a time,
// asks the decision engine for a verdict, and on BUY drives the listing
// manager to settle payment. Every pair produces exactly one decision
// record, emitted in dequeue order.
type Engine struct {
	decider   decide.Engine
	listings  *contract.Manager
	agents    domain.AgentStore
	decisions domain.DecisionStore
	sink      RecordSink       // optional
	bus       domain.SignalBus // optional
	dedup     *Dedup
	logger    *slog.Logger

	decideTimeout   time.Duration
	cleanupInterval time.Duration

	mu    sync.Mutex
	queue []Pair
	wake  chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecordSink attaches a fire-and-forget sink for emitted records.
func WithRecordSink(sink RecordSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithSignalBus attaches a signal bus; every record is appended to the
// "decisions" stream and published on the channel of the same name.
func WithSignalBus(bus domain.SignalBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithDecideTimeout bounds each decision engine call. Zero disables the
// bound.
func WithDecideTimeout(d time.Duration) Option {
	return func(e *Engine) { e.decideTimeout = d }
}

// WithDedupTTL overrides the default ten minute dedup window.
func WithDedupTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.dedup = NewDedup(d)
		}
	}
}

// NewEngine creates a matching engine. The dedup window suppresses repeated
// consideration of a pair for ten minutes, which covers accidental double
// registration without preventing a deliberate retry later.
func NewEngine(
	decider decide.Engine,
	listings *contract.Manager,
	agents domain.AgentStore,
	decisions domain.DecisionStore,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		decider:         decider,
		listings:        listings,
		agents:          agents,
		decisions:       decisions,
		dedup:           NewDedup(10 * time.Minute),
		logger:          logger.With(slog.String("component", "matching_engine")),
		decideTimeout:   30 * time.Second,
		cleanupInterval: time.Minute,
		wake:            make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Enqueue appends a pair to the work queue. Once enqueued a pair is always
// eventually processed; there is no cancellation path for queued work.
func (e *Engine) Enqueue(agent domain.Agent, item domain.Item) {
	e.mu.Lock()
	e.queue = append(e.queue, Pair{Agent: agent, Item: item})
	depth := len(e.queue)
	e.mu.Unlock()

	e.logger.Debug("pair enqueued",
		slog.String("agent_id", agent.ID),
		slog.String("item_id", item.ID),
		slog.Int("queue_depth", depth),
	)

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// ProcessNewItem enqueues the item against every known agent. Used when an
// item is registered after agents already exist.
func (e *Engine) ProcessNewItem(item domain.Item, agents []domain.Agent) {
	for _, agent := range agents {
		if agent.Status != domain.AgentStatusActive {
			continue
		}
		e.Enqueue(agent, item)
	}
}

// ProcessNewAgent enqueues every known item against the agent. Used when an
// agent is created after items already exist.
func (e *Engine) ProcessNewAgent(agent domain.Agent, items []domain.Item) {
	for _, item := range items {
		e.Enqueue(agent, item)
	}
}

// QueueDepth returns the number of pairs waiting to be processed.
func (e *Engine) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Run starts the single drain worker. It processes queued pairs strictly
// sequentially until the context is cancelled. Errors inside one pair's
// processing never abort the loop.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("matching engine started")
	defer e.logger.Info("matching engine stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		pair, ok := e.pop()
		if ok {
			e.process(ctx, pair)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.wake:
		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// pop removes and returns the head of the queue.
func (e *Engine) pop() (Pair, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return Pair{}, false
	}
	pair := e.queue[0]
	e.queue = e.queue[1:]
	return pair, true
}

// process handles a single pair: verdict, optional settlement, record. All
// failures are contained at the pair boundary and surface as annotations on
// the emitted decision record.
func (e *Engine) process(ctx context.Context, pair Pair) {
	log := e.logger.With(
		slog.String("agent_id", pair.Agent.ID),
		slog.String("item_id", pair.Item.ID),
	)

	if e.dedup.IsDuplicate(pair.key()) {
		log.Debug("pair deduplicated, skipping")
		return
	}

	rec := domain.DecisionRecord{
		ID:        uuid.New().String(),
		AgentID:   pair.Agent.ID,
		ItemID:    pair.Item.ID,
		ItemName:  pair.Item.Name,
		ItemPrice: pair.Item.Price,
		CreatedAt: time.Now().UTC(),
	}

	decision, err := e.decide(ctx, pair)
	if err != nil {
		// The engine's failure is not the agent's verdict; record the pair
		// as ignored with the failure attached so the audit trail stays
		// complete.
		log.Warn("decision engine failed",
			slog.String("error", err.Error()),
		)
		rec.Decision = domain.VerdictIgnore
		rec.Reasoning = fmt.Sprintf("decision engine error: %v", err)
		e.emit(ctx, rec, log)
		return
	}

	rec.Decision = decision.Verdict
	rec.Reasoning = decision.Reasoning
	rec.MaxPrice = decision.MaxPrice

	if decision.Verdict != domain.VerdictBuy {
		e.emit(ctx, rec, log)
		return
	}

	e.settle(ctx, pair, &rec, log)
	e.emit(ctx, rec, log)
}

// decide invokes the decision engine with the configured timeout.
func (e *Engine) decide(ctx context.Context, pair Pair) (decide.Decision, error) {
	if e.decideTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.decideTimeout)
		defer cancel()
	}
	return e.decider.Decide(ctx, pair.Agent, pair.Item)
}

// settle opens the item's listing (idempotent) and pays the item price from
// the agent's wallet. The BUY verdict stands regardless of settlement
// outcome; a failed settlement annotates the record instead of reversing the
// decision.
func (e *Engine) settle(ctx context.Context, pair Pair, rec *domain.DecisionRecord, log *slog.Logger) {
	_, err := e.listings.OpenListingFor(ctx, pair.Item, pair.Item.SellerWallet)
	if err != nil {
		log.Error("open listing failed",
			slog.String("error", err.Error()),
		)
		rec.Settlement = domain.SettlementFailed
		rec.SettlementErr = err.Error()
		return
	}

	msg, err := e.listings.SettlePayment(ctx, pair.Item.ID, pair.Agent.WalletID, pair.Agent.WalletSecret, pair.Item.Price)
	if err != nil {
		log.Error("settlement failed",
			slog.String("error", err.Error()),
		)
		rec.Settlement = domain.SettlementFailed
		rec.SettlementErr = err.Error()
		return
	}

	rec.Settlement = domain.SettlementSucceeded
	rec.TxID = extractTxID(msg)
	log.Info("purchase settled",
		slog.String("item_name", pair.Item.Name),
		slog.Int64("amount", pair.Item.Price),
		slog.String("status", msg),
	)

	if err := e.agents.AddAcquiredItem(ctx, pair.Agent.ID, pair.Item.Name); err != nil {
		log.Warn("failed to record acquisition",
			slog.String("error", err.Error()),
		)
	}
	if err := e.agents.UpdateBalance(ctx, pair.Agent.ID, pair.Agent.WalletBalance-pair.Item.Price); err != nil {
		log.Warn("failed to update agent balance",
			slog.String("error", err.Error()),
		)
	}
}

// emit registers the record (idempotent on id) and fans it out to the sink
// and the signal bus. Fan-out failures are logged and never retried.
func (e *Engine) emit(ctx context.Context, rec domain.DecisionRecord, log *slog.Logger) {
	stored, created, err := e.decisions.Register(ctx, rec)
	if err != nil {
		log.Error("failed to register decision record",
			slog.String("error", err.Error()),
		)
		return
	}
	if !created {
		log.Debug("decision record already registered",
			slog.String("decision_id", stored.ID),
		)
		return
	}

	log.Info("decision recorded",
		slog.String("decision_id", stored.ID),
		slog.String("decision", string(stored.Decision)),
		slog.String("settlement", string(stored.Settlement)),
	)

	if e.sink != nil {
		e.sink.Offer(stored)
	}
	if e.bus != nil {
		payload, err := json.Marshal(stored)
		if err == nil {
			if err := e.bus.StreamAppend(ctx, decisionsStream, payload); err != nil {
				log.Warn("decision stream append failed",
					slog.String("error", err.Error()),
				)
			}
			if err := e.bus.Publish(ctx, decisionsStream, payload); err != nil {
				log.Warn("decision publish failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// extractTxID pulls the "(tx ...)" suffix out of a contract status string;
// empty when the string carries none.
func extractTxID(msg string) string {
	const marker = "(tx "
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if n := len(rest); n > 0 && rest[n-1] == ')' {
		return rest[:n-1]
	}
	return ""
}
