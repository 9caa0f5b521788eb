// Package wellness reads the user's current financial-wellness snapshot
// from the backend dashboard endpoint. The pipeline never waits on a sick
// backend: any failure substitutes a conservative default.
package wellness

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"spendguard-agent/internal/config"
)

// State is the wellness snapshot the decision engine consumes. String
// fields keep the backend's display vocabulary (Low/Medium/High etc).
type State struct {
	StressLevel   string  `json:"stress_level"`
	StressScore   float64 `json:"stress_score"`
	SpendingRisk  string  `json:"spending_risk"`
	CognitiveLoad float64 `json:"cognitive_load"`
	SavingsRunway string  `json:"savings_runway"`
}

// DefaultState is substituted on any fetch failure so the pipeline keeps
// moving with a conservative read.
func DefaultState() State {
	return State{
		StressLevel:   "Low",
		SpendingRisk:  "Safe",
		SavingsRunway: "3.5 Mo",
	}
}

// Client fetches and caches the wellness state.
type Client struct {
	baseURL   string
	authToken string
	timeout   time.Duration
	ttl       time.Duration
	http      *http.Client

	mu        sync.Mutex
	cached    State
	fetchedAt time.Time
}

// NewClient builds a client from the backend config section.
func NewClient(cfg config.BackendConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		timeout:   cfg.Timeout(),
		ttl:       cfg.CacheTTL(),
		http:      &http.Client{Timeout: cfg.Timeout()},
	}
}

// GetState returns the current wellness state. Serves from cache inside the
// TTL; on any fetch failure returns DefaultState. Never returns an error.
func (c *Client) GetState(ctx context.Context) State {
	c.mu.Lock()
	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		s := c.cached
		c.mu.Unlock()
		return s
	}
	c.mu.Unlock()

	s, err := c.fetch(ctx)
	if err != nil {
		log.Printf("wellness: fetch failed, using defaults: %v", err)
		return DefaultState()
	}

	c.mu.Lock()
	c.cached = s
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return s
}

// Invalidate drops the cache so the next GetState refetches.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) fetch(ctx context.Context) (State, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/dashboard", nil)
	if err != nil {
		return State{}, fmt.Errorf("build request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("dashboard request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return State{}, fmt.Errorf("dashboard returned %d", resp.StatusCode)
	}

	var payload struct {
		StressLevel   *string  `json:"stress_level"`
		StressScore   *float64 `json:"stress_score"`
		SpendingRisk  *string  `json:"spending_risk"`
		CognitiveLoad *float64 `json:"cognitive_load"`
		SavingsRunway *string  `json:"savings_runway"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return State{}, fmt.Errorf("decode dashboard: %w", err)
	}

	// Field-by-field mapping with defaults for anything the backend omits.
	s := DefaultState()
	if payload.StressLevel != nil && *payload.StressLevel != "" {
		s.StressLevel = *payload.StressLevel
	}
	if payload.StressScore != nil {
		s.StressScore = *payload.StressScore
	}
	if payload.SpendingRisk != nil && *payload.SpendingRisk != "" {
		s.SpendingRisk = *payload.SpendingRisk
	}
	if payload.CognitiveLoad != nil {
		s.CognitiveLoad = *payload.CognitiveLoad
	}
	if payload.SavingsRunway != nil && *payload.SavingsRunway != "" {
		s.SavingsRunway = *payload.SavingsRunway
	}
	return s, nil
}
