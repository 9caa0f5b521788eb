package wellness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"spendguard-agent/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.BackendConfig{
		BaseURL:        srv.URL,
		AuthToken:      "tok-123",
		RequestTimeout: "2s",
		StateCacheTTL:  "1h",
	}), srv
}

func TestGetStateSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dashboard", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Write([]byte(`{"stress_level":"High","stress_score":8.2,"spending_risk":"Elevated","cognitive_load":0.7,"savings_runway":"1.2 Mo"}`))
	})

	s := c.GetState(context.Background())
	assert.Equal(t, "High", s.StressLevel)
	assert.InDelta(t, 8.2, s.StressScore, 0.001)
	assert.Equal(t, "Elevated", s.SpendingRisk)
	assert.Equal(t, "1.2 Mo", s.SavingsRunway)
}

func TestGetStateMissingFieldsDefault(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stress_score":3.1}`))
	})

	s := c.GetState(context.Background())
	assert.Equal(t, "Low", s.StressLevel)
	assert.Equal(t, "Safe", s.SpendingRisk)
	assert.Equal(t, "3.5 Mo", s.SavingsRunway)
	assert.InDelta(t, 3.1, s.StressScore, 0.001)
}

func TestGetStateFailuresYieldDefault(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>not json</html>"))
		}},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)
			assert.Equal(t, DefaultState(), c.GetState(context.Background()))
		})
	}
}

func TestGetStateUnreachableBackend(t *testing.T) {
	c := NewClient(config.BackendConfig{
		BaseURL:        "http://127.0.0.1:1",
		RequestTimeout: "200ms",
		StateCacheTTL:  "1h",
	})
	assert.Equal(t, DefaultState(), c.GetState(context.Background()))
}

func TestGetStateCachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"stress_level":"Medium"}`))
	})

	first := c.GetState(context.Background())
	second := c.GetState(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	c.Invalidate()
	c.GetState(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestFailureDoesNotPoisonCache(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"stress_level":"High"}`))
	})

	assert.Equal(t, DefaultState(), c.GetState(context.Background()))
	// Failure is not cached; the next call refetches and succeeds.
	assert.Equal(t, "High", c.GetState(context.Background()).StressLevel)
}
