package decide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avencia/agentmarket/internal/domain"
)

// RemoteConfig holds the endpoint of a hosted decision provider.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Remote is an Engine backed by a hosted model provider. The agent's
// provider_id and model_id route the request; the provider answers with a
// verdict payload.
type Remote struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemote creates a Remote engine. A zero timeout defaults to 30 seconds.
func NewRemote(cfg RemoteConfig) *Remote {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// decideRequest is the JSON body posted to the provider.
type decideRequest struct {
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id"`
	Prompt     string `json:"prompt"`
	ItemName   string `json:"item_name"`
	ItemDesc   string `json:"item_description,omitempty"`
	ItemPrice  int64  `json:"item_price"`
}

// decideResponse is the provider's answer.
type decideResponse struct {
	Verdict   string `json:"verdict"`
	Reasoning string `json:"reasoning,omitempty"`
	MaxPrice  int64  `json:"max_price,omitempty"`
}

// Decide posts the pair to the provider and parses the verdict. Any verdict
// other than BUY is treated as IGNORE, so a misbehaving provider can never
// trigger a purchase by accident.
func (r *Remote) Decide(ctx context.Context, agent domain.Agent, item domain.Item) (Decision, error) {
	body, err := json.Marshal(decideRequest{
		ProviderID: agent.ProviderID,
		ModelID:    agent.ModelID,
		Prompt:     agent.Prompt,
		ItemName:   item.Name,
		ItemDesc:   item.Description,
		ItemPrice:  item.Price,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("decide: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/decide", bytes.NewReader(body))
	if err != nil {
		return Decision{}, fmt.Errorf("decide: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("decide: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Decision{}, fmt.Errorf("decide: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out decideResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Decision{}, fmt.Errorf("decide: decode response: %w", err)
	}

	verdict := domain.VerdictIgnore
	if out.Verdict == string(domain.VerdictBuy) {
		verdict = domain.VerdictBuy
	}
	return Decision{
		Verdict:   verdict,
		Reasoning: out.Reasoning,
		MaxPrice:  out.MaxPrice,
	}, nil
}
