// Package poller implements the blockchain event poller: a ticker loop that
// scans new ledger rounds for payments addressed to a tracked wallet,
// decodes the note-field message envelope, consults the decision engine, and
// posts a reply transaction back to the chain.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avencia/agentmarket/internal/decide"
	"github.com/avencia/agentmarket/internal/domain"
	"github.com/avencia/agentmarket/internal/ledger"
)

// Config holds the poller's wallet binding and timing parameters.
type Config struct {
	// TrackedWallet is the address whose inbound payments are scanned.
	TrackedWallet string
	// WalletSecret signs reply transactions from the tracked wallet.
	WalletSecret string
	// Interval between polls. Zero defaults to five seconds.
	Interval time.Duration
	// ReplyAmount is the value attached to reply transactions; ledgers
	// reject zero-value payments, so the default is one smallest unit.
	ReplyAmount int64
	// Responder is the persona used to answer inbound messages.
	Responder domain.Agent
}

// Poller scans the chain for inbound application messages. It is either
// stopped or running; Run transitions it to running and context
// cancellation stops it cooperatively; the poll iteration in flight is
// allowed to finish.
type Poller struct {
	chain    ledger.Client
	decider  decide.Engine
	audit    domain.AuditStore // optional
	cfg      Config
	logger   *slog.Logger
	running  atomic.Bool
	lastSeen uint64
}

// New creates a Poller.
func New(chain ledger.Client, decider decide.Engine, audit domain.AuditStore, cfg Config, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ReplyAmount <= 0 {
		cfg.ReplyAmount = 1
	}
	return &Poller{
		chain:   chain,
		decider: decider,
		audit:   audit,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "event_poller")),
	}
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// Run starts the poll loop. Only rounds committed after startup are
// scanned. It returns when the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	height, err := p.chain.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("poller: initial height: %w", err)
	}
	p.lastSeen = height

	p.running.Store(true)
	defer p.running.Store(false)

	p.logger.Info("poller started",
		slog.String("wallet", p.cfg.TrackedWallet),
		slog.Uint64("from_height", height),
		slog.Duration("interval", p.cfg.Interval),
	)
	defer p.logger.Info("poller stopped")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll scans every unseen block up to the current height. A failure inside
// one block is logged and does not stop the scan of subsequent blocks.
func (p *Poller) poll(ctx context.Context) {
	height, err := p.chain.CurrentHeight(ctx)
	if err != nil {
		p.logger.Warn("height query failed",
			slog.String("error", err.Error()),
		)
		return
	}

	for h := p.lastSeen + 1; h <= height; h++ {
		if ctx.Err() != nil {
			return
		}
		if err := p.processBlock(ctx, h); err != nil {
			p.logger.Error("block processing failed",
				slog.Uint64("height", h),
				slog.String("error", err.Error()),
			)
		}
		p.lastSeen = h
	}
}

// processBlock decodes and answers every message addressed to the tracked
// wallet in one block.
func (p *Poller) processBlock(ctx context.Context, height uint64) error {
	blk, err := p.chain.GetBlock(ctx, height)
	if err != nil {
		return fmt.Errorf("poller: fetch block %d: %w", height, err)
	}

	for _, tx := range blk.Transactions {
		if tx.Receiver != p.cfg.TrackedWallet {
			continue
		}
		if tx.Sender == p.cfg.TrackedWallet {
			// Never answer our own replies.
			continue
		}
		msg := ledger.DecodeNote(tx.Note)
		if msg == nil {
			continue
		}
		if err := p.handleMessage(ctx, tx, *msg); err != nil {
			p.logger.Warn("message handling failed",
				slog.String("tx_id", tx.ID),
				slog.String("type", string(msg.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// handleMessage consults the decision engine about the message body and
// posts a reply payment whose note references the original transaction.
func (p *Poller) handleMessage(ctx context.Context, tx ledger.Transaction, msg ledger.Message) error {
	item := domain.Item{
		ID:    tx.ID,
		Name:  msg.Body,
		Price: tx.Amount,
	}
	decision, err := p.decider.Decide(ctx, p.cfg.Responder, item)
	if err != nil {
		return fmt.Errorf("poller: decide: %w", err)
	}

	reply := fmt.Sprintf("%s: %s", decision.Verdict, decision.Reasoning)
	note, err := ledger.EncodeNote(ledger.Message{
		Type: msg.Type,
		Body: reply,
		Ref:  tx.ID,
	})
	if err != nil {
		return fmt.Errorf("poller: encode reply: %w", err)
	}

	replyTx, err := p.chain.SubmitPayment(ctx, ledger.Payment{
		Sender:       p.cfg.TrackedWallet,
		SenderSecret: p.cfg.WalletSecret,
		Receiver:     tx.Sender,
		Amount:       p.cfg.ReplyAmount,
		Note:         note,
	})
	if err != nil {
		return fmt.Errorf("poller: submit reply: %w", err)
	}

	p.logger.Info("replied to chain message",
		slog.String("in_tx", tx.ID),
		slog.String("reply_tx", replyTx),
		slog.String("type", string(msg.Type)),
		slog.String("verdict", string(decision.Verdict)),
	)
	if p.audit != nil {
		if err := p.audit.Log(ctx, "poller_reply", map[string]any{
			"in_tx":    tx.ID,
			"reply_tx": replyTx,
			"type":     string(msg.Type),
			"verdict":  string(decision.Verdict),
		}); err != nil {
			p.logger.Warn("audit log write failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
