// Package decide defines the decision engine boundary: given an agent's
// purchase criteria and an item, produce a BUY or IGNORE verdict. The engine
// is an external collaborator from the matching engine's point of view; the
// rule-based implementation stands in for a hosted model, and the remote
// implementation talks to one over HTTP.
package decide

import (
	"context"

	"github.com/avencia/agentmarket/internal/domain"
)

// Decision is a verdict for one (agent, item) pair.
type Decision struct {
	Verdict   domain.Verdict `json:"verdict"`
	Reasoning string         `json:"reasoning,omitempty"`
	MaxPrice  int64          `json:"max_price,omitempty"`
}

// Engine evaluates items against an agent's purchase criteria. Decide must
// be callable repeatedly and independently per pair; implementations hold no
// shared mutable state across calls.
type Engine interface {
	Decide(ctx context.Context, agent domain.Agent, item domain.Item) (Decision, error)
}
