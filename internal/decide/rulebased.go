package decide

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/avencia/agentmarket/internal/domain"
)

// budgetRe matches budget hints like "max price 1000", "budget: 500" or
// "under 2500" in an agent prompt.
var budgetRe = regexp.MustCompile(`(?i)(?:max\s*price|budget|under|up\s*to)\s*:?\s*(\d+)`)

// RuleBased is a deterministic decision engine that stands in for a hosted
// model. It buys an item when the prompt mentions a term from the item's
// name or description and the price fits any budget hint found in the
// prompt.
type RuleBased struct{}

// NewRuleBased creates a RuleBased engine.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

// Decide evaluates the item against the agent's prompt.
func (e *RuleBased) Decide(ctx context.Context, agent domain.Agent, item domain.Item) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	prompt := strings.ToLower(agent.Prompt)
	maxPrice := parseBudget(agent.Prompt)

	if !mentionsItem(prompt, item) {
		return Decision{
			Verdict:   domain.VerdictIgnore,
			Reasoning: fmt.Sprintf("%q does not match the agent's interests", item.Name),
			MaxPrice:  maxPrice,
		}, nil
	}

	if maxPrice > 0 && item.Price > maxPrice {
		return Decision{
			Verdict:   domain.VerdictIgnore,
			Reasoning: fmt.Sprintf("price %d exceeds budget %d", item.Price, maxPrice),
			MaxPrice:  maxPrice,
		}, nil
	}

	if agent.WalletBalance > 0 && item.Price > agent.WalletBalance {
		return Decision{
			Verdict:   domain.VerdictIgnore,
			Reasoning: fmt.Sprintf("price %d exceeds wallet balance %d", item.Price, agent.WalletBalance),
			MaxPrice:  maxPrice,
		}, nil
	}

	return Decision{
		Verdict:   domain.VerdictBuy,
		Reasoning: fmt.Sprintf("%q matches the agent's interests within budget", item.Name),
		MaxPrice:  maxPrice,
	}, nil
}

// parseBudget extracts the first budget hint from a prompt; zero means no
// budget was stated.
func parseBudget(prompt string) int64 {
	m := budgetRe.FindStringSubmatch(prompt)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// mentionsItem reports whether any meaningful word of the item's name or
// description appears in the lowercased prompt. Words shorter than four
// characters are skipped to avoid matching articles and prepositions.
func mentionsItem(prompt string, item domain.Item) bool {
	for _, source := range []string{item.Name, item.Description} {
		for _, word := range strings.Fields(strings.ToLower(source)) {
			word = strings.Trim(word, ".,;:!?\"'()")
			if len(word) < 4 {
				continue
			}
			if strings.Contains(prompt, word) {
				return true
			}
		}
	}
	return false
}
