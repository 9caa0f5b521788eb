// Package stats owns the daily intervention counters and the best-effort
// outcome reporting to the backend. It is the sole writer of the persisted
// DailyStats record.
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"spendguard-agent/internal/config"
	"spendguard-agent/internal/decision"
	"spendguard-agent/internal/extract"
	"spendguard-agent/internal/store"
)

// Session outcomes as reported to the backend.
const (
	OutcomeProceeded   = "proceeded"
	OutcomeCancelled   = "cancelled"
	OutcomeAutoExpired = "auto_expired"
)

// DailyStats roll over at local midnight.
type DailyStats struct {
	Date             string  `json:"date"`
	Interventions    int     `json:"interventions"`
	PotentialSavings float64 `json:"potential_savings"`
}

// Aggregator records outcomes and keeps the daily counters persisted.
type Aggregator struct {
	st        *store.Store
	userID    string
	baseURL   string
	authToken string
	http      *http.Client

	mu    sync.Mutex
	today DailyStats

	// now is replaceable so rollover is testable.
	now func() time.Time
}

// New loads persisted stats before the first increment.
func New(st *store.Store, cfg config.BackendConfig, userID string) (*Aggregator, error) {
	a := &Aggregator{
		st:        st,
		userID:    userID,
		baseURL:   cfg.BaseURL,
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: cfg.Timeout()},
		now:       time.Now,
	}
	if _, err := st.Get(store.KeyTodayStats, &a.today); err != nil {
		return nil, fmt.Errorf("load daily stats: %w", err)
	}
	return a, nil
}

// Today returns a copy of the current counters, rolled over if the day
// changed since the last mutation.
func (a *Aggregator) Today() DailyStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rolloverLocked()
	return a.today
}

// InterventionsToday feeds the decision engine's daily-limit rule.
func (a *Aggregator) InterventionsToday() int {
	return a.Today().Interventions
}

// Record logs one resolved intervention session: updates the daily
// counters unconditionally and ships the outcome to the backend without
// blocking the caller. Every intervened amount counts toward potential
// savings, whatever the user decided.
func (a *Aggregator) Record(ctx context.Context, d decision.RiskDecision, pc extract.PurchaseContext, outcome string) {
	a.mu.Lock()
	a.rolloverLocked()
	a.today.Interventions++
	a.today.PotentialSavings += pc.Amount
	a.persistLocked()
	a.mu.Unlock()

	go a.postOutcome(d, pc, outcome)
	if outcome == OutcomeProceeded {
		go a.postTransaction(pc)
	}
}

func (a *Aggregator) rolloverLocked() {
	today := a.now().Format("2006-01-02")
	if a.today.Date != today {
		a.today = DailyStats{Date: today}
		a.persistLocked()
	}
}

func (a *Aggregator) persistLocked() {
	if err := a.st.Put(store.KeyTodayStats, a.today); err != nil {
		log.Printf("stats: persist daily stats: %v", err)
	}
	if err := a.st.Put(store.KeyLastStatsDate, a.today.Date); err != nil {
		log.Printf("stats: persist stats date: %v", err)
	}
}

type outcomePayload struct {
	UserID          string `json:"user_id"`
	URL             string `json:"url"`
	Action          string `json:"action"`
	Accepted        bool   `json:"accepted"`
	Timestamp       string `json:"timestamp"`
	DecisionSummary string `json:"decision_summary"`
}

// postOutcome is fire-and-forget: failures are logged and dropped, the
// overlay must never wait on the backend.
func (a *Aggregator) postOutcome(d decision.RiskDecision, pc extract.PurchaseContext, outcome string) {
	payload := outcomePayload{
		UserID: a.userID,
		URL:    pc.URL,
		Action: outcome,
		// Accepted means the user respected the intervention.
		Accepted:        outcome != OutcomeProceeded,
		Timestamp:       a.now().UTC().Format(time.RFC3339),
		DecisionSummary: d.Summary(),
	}
	if err := a.post("/intervention/response", payload); err != nil {
		log.Printf("stats: outcome report dropped: %v", err)
	}
}

type transactionPayload struct {
	UserID   string  `json:"user_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Merchant string  `json:"merchant"`
	Category string  `json:"category"`
}

func (a *Aggregator) postTransaction(pc extract.PurchaseContext) {
	if pc.Amount <= 0 {
		return
	}
	payload := transactionPayload{
		UserID:   a.userID,
		Amount:   pc.Amount,
		Currency: pc.Currency,
		Merchant: pc.Merchant,
		Category: pc.Category,
	}
	if err := a.post("/ingest/transaction", payload); err != nil {
		log.Printf("stats: transaction record dropped: %v", err)
	}
}

func (a *Aggregator) post(path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.authToken)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return nil
}
