// Package domain defines the core types of the agent marketplace: buyer
// agents, items for sale, decision records, and listing state. It also
// declares the store, cache, and blob interfaces implemented by the
// infrastructure packages so business logic never depends on a concrete
// backend.
package domain

import "time"

// AgentStatus represents the operational state of a buyer agent.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
	AgentStatusError    AgentStatus = "error"
)

// Agent is an autonomous buyer. Its prompt carries the natural-language
// purchase criteria evaluated by the decision engine; the wallet fields are
// the signing credential used to settle purchases on the ledger.
type Agent struct {
	ID            string      `json:"id"`
	Prompt        string      `json:"prompt"`
	ModelID       string      `json:"model_id"`
	ProviderID    string      `json:"provider_id"`
	WalletID      string      `json:"wallet_id"`
	WalletSecret  string      `json:"-"`
	WalletBalance int64       `json:"wallet_balance"`
	ItemsAcquired []string    `json:"items_acquired"`
	Status        AgentStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// HasAcquired reports whether the agent already owns an item with the given
// name.
func (a Agent) HasAcquired(name string) bool {
	for _, n := range a.ItemsAcquired {
		if n == name {
			return true
		}
	}
	return false
}
