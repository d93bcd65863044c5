package domain

import "time"

// Verdict is a decision engine's answer for one (agent, item) pair.
type Verdict string

const (
	VerdictBuy    Verdict = "BUY"
	VerdictIgnore Verdict = "IGNORE"
)

// SettlementStatus summarizes the outcome of the payment that followed a BUY
// verdict. An IGNORE verdict never has a settlement status.
type SettlementStatus string

const (
	SettlementNone      SettlementStatus = ""
	SettlementSucceeded SettlementStatus = "succeeded"
	SettlementFailed    SettlementStatus = "failed"
)

// DecisionRecord is an immutable log entry of one matching attempt. Records
// are append-only and emitted in queue order, which makes the decision log a
// deterministic audit trail for a single process instance.
type DecisionRecord struct {
	ID             string           `json:"id"`
	AgentID        string           `json:"agent_id"`
	ItemID         string           `json:"item_id"`
	ItemName       string           `json:"item_name"`
	ItemPrice      int64            `json:"item_price"`
	Decision       Verdict          `json:"decision"`
	MaxPrice       int64            `json:"max_price,omitempty"`
	Reasoning      string           `json:"reasoning,omitempty"`
	Settlement     SettlementStatus `json:"settlement,omitempty"`
	SettlementErr  string           `json:"settlement_error,omitempty"`
	TxID           string           `json:"tx_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
