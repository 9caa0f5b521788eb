package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendguard-agent/internal/config"
	"spendguard-agent/internal/decision"
	"spendguard-agent/internal/extract"
	"spendguard-agent/internal/store"
)

type backendRecorder struct {
	mu       sync.Mutex
	outcomes []outcomePayload
	txns     []transactionPayload
	done     chan struct{}
}

func newBackend(t *testing.T, expected int) (*backendRecorder, *httptest.Server) {
	t.Helper()
	rec := &backendRecorder{done: make(chan struct{}, expected)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		switch r.URL.Path {
		case "/intervention/response":
			var p outcomePayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			rec.outcomes = append(rec.outcomes, p)
		case "/ingest/transaction":
			var p transactionPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			rec.txns = append(rec.txns, p)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		rec.done <- struct{}{}
	}))
	t.Cleanup(srv.Close)
	return rec, srv
}

func (r *backendRecorder) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for backend posts")
		}
	}
}

func newAggregator(t *testing.T, baseURL string) *Aggregator {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	a, err := New(st, config.BackendConfig{BaseURL: baseURL, RequestTimeout: "2s"}, "user-1")
	require.NoError(t, err)
	return a
}

func testDecision() decision.RiskDecision {
	return decision.RiskDecision{ShouldIntervene: true, RiskLevel: "high", Source: "rule-based"}
}

func TestRecordIncrementsAndPersists(t *testing.T) {
	rec, srv := newBackend(t, 2)
	a := newAggregator(t, srv.URL)

	pc := extract.PurchaseContext{Amount: 1500, Currency: "INR", URL: "https://x/p", Merchant: "amazon", Category: "electronics"}
	a.Record(context.Background(), testDecision(), pc, OutcomeCancelled)
	a.Record(context.Background(), testDecision(), pc, OutcomeCancelled)
	rec.wait(t, 2)

	got := a.Today()
	assert.Equal(t, 2, got.Interventions)
	assert.InDelta(t, 3000, got.PotentialSavings, 0.001)
	assert.Equal(t, time.Now().Format("2006-01-02"), got.Date)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, "user-1", rec.outcomes[0].UserID)
	assert.Equal(t, OutcomeCancelled, rec.outcomes[0].Action)
	assert.True(t, rec.outcomes[0].Accepted)
	assert.Empty(t, rec.txns)
}

func TestProceededRecordsTransaction(t *testing.T) {
	rec, srv := newBackend(t, 2)
	a := newAggregator(t, srv.URL)

	pc := extract.PurchaseContext{Amount: 900, Currency: "INR", Merchant: "swiggy", Category: "food"}
	a.Record(context.Background(), testDecision(), pc, OutcomeProceeded)
	rec.wait(t, 2)

	got := a.Today()
	assert.Equal(t, 1, got.Interventions)
	assert.InDelta(t, 900, got.PotentialSavings, 0.001)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.txns, 1)
	assert.Equal(t, 900.0, rec.txns[0].Amount)
	assert.Equal(t, "swiggy", rec.txns[0].Merchant)
	require.Len(t, rec.outcomes, 1)
	assert.False(t, rec.outcomes[0].Accepted)
}

func TestSavingsAccrueOnEveryOutcome(t *testing.T) {
	rec, srv := newBackend(t, 3)
	a := newAggregator(t, srv.URL)

	pc := extract.PurchaseContext{Amount: 12000, Currency: "INR", Merchant: "amazon"}
	a.Record(context.Background(), testDecision(), pc, OutcomeProceeded)
	rec.wait(t, 2)

	got := a.Today()
	assert.Equal(t, 1, got.Interventions)
	assert.InDelta(t, 12000, got.PotentialSavings, 0.001, "a proceeded purchase still counts toward savings")

	a.Record(context.Background(), testDecision(), pc, OutcomeAutoExpired)
	rec.wait(t, 1)

	got = a.Today()
	assert.Equal(t, 2, got.Interventions)
	assert.InDelta(t, 24000, got.PotentialSavings, 0.001)
}

func TestDayRolloverResetsCounters(t *testing.T) {
	rec, srv := newBackend(t, 2)
	a := newAggregator(t, srv.URL)

	yesterday := time.Now().AddDate(0, 0, -1)
	a.now = func() time.Time { return yesterday }

	pc := extract.PurchaseContext{Amount: 500}
	a.Record(context.Background(), testDecision(), pc, OutcomeCancelled)
	rec.wait(t, 1)
	require.Equal(t, 1, a.today.Interventions)

	a.now = time.Now
	a.Record(context.Background(), testDecision(), pc, OutcomeCancelled)
	rec.wait(t, 1)

	got := a.Today()
	assert.Equal(t, 1, got.Interventions, "yesterday's count must not carry over")
	assert.InDelta(t, 500, got.PotentialSavings, 0.001)
	assert.Equal(t, time.Now().Format("2006-01-02"), got.Date)
}

func TestStatsSurviveRestart(t *testing.T) {
	rec, srv := newBackend(t, 1)
	path := filepath.Join(t.TempDir(), "state.json")

	st, err := store.Open(path)
	require.NoError(t, err)
	a, err := New(st, config.BackendConfig{BaseURL: srv.URL, RequestTimeout: "2s"}, "user-1")
	require.NoError(t, err)
	a.Record(context.Background(), testDecision(), extract.PurchaseContext{Amount: 100}, OutcomeCancelled)
	rec.wait(t, 1)

	st2, err := store.Open(path)
	require.NoError(t, err)
	a2, err := New(st2, config.BackendConfig{BaseURL: srv.URL, RequestTimeout: "2s"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, a2.Today().Interventions)
}

func TestRecordNeverBlocksOnDeadBackend(t *testing.T) {
	a := newAggregator(t, "http://127.0.0.1:1")

	start := time.Now()
	a.Record(context.Background(), testDecision(), extract.PurchaseContext{Amount: 100}, OutcomeCancelled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, a.Today().Interventions)
}
