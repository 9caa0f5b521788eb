package reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendguard-agent/internal/config"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req struct {
			Model   string `json:"model"`
			Prompt  string `json:"prompt"`
			Stream  bool   `json:"stream"`
			Options struct {
				Temperature float64 `json:"temperature"`
				TopP        float64 `json:"top_p"`
			} `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		assert.InDelta(t, 0.3, req.Options.Temperature, 0.001)
		assert.Contains(t, req.Prompt, "purchase")

		w.Write([]byte(`{"response":"RISK_LEVEL: high"}`))
	}))
	defer srv.Close()

	c := NewClient(config.ReasoningConfig{
		URL:         srv.URL,
		Model:       "test-model",
		Timeout:     "2s",
		Temperature: 0.3,
		TopP:        0.9,
	})

	got, err := c.Generate(context.Background(), "analyze this purchase")
	require.NoError(t, err)
	assert.Equal(t, "RISK_LEVEL: high", got)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"error field", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"model not found"}`))
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := NewClient(config.ReasoningConfig{URL: srv.URL, Model: "m", Timeout: "2s"})
			_, err := c.Generate(context.Background(), "p")
			assert.Error(t, err)
		})
	}
}

func TestGenerateContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(config.ReasoningConfig{URL: srv.URL, Model: "m", Timeout: "30s"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, "p")
	assert.Error(t, err)
}
