package watch

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendguard-agent/internal/config"
	"spendguard-agent/internal/sites"
	"spendguard-agent/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	cfg := config.DefaultConfig()
	return NewManager(cfg.Browser, cfg.Monitor, 8*time.Second, sites.NewRegistry(), st)
}

func TestNewManagerDefaults(t *testing.T) {
	m := newTestManager(t)
	assert.Empty(t, m.List())
	assert.False(t, m.IsConnected())
	assert.False(t, m.StopTab("missing"))

	zero := NewManager(config.BrowserConfig{}, config.MonitorConfig{}, 0, sites.NewRegistry(), m.st)
	assert.Equal(t, 8*time.Second, zero.failOpen)
}

func TestPersistTabsRoundTrip(t *testing.T) {
	m := newTestManager(t)
	meta := Tab{ID: "t1", TargetID: "target-1", URL: "https://www.amazon.in/dp/X", Site: "amazon", Status: "watching"}
	m.tabs[meta.ID] = &tabRecord{meta: meta}
	m.persistTabs()

	var saved []Tab
	ok, err := m.st.Get(keyWatchedTabs, &saved)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, saved, 1)
	assert.Equal(t, "target-1", saved[0].TargetID)
	assert.Equal(t, "amazon", saved[0].Site)
}

func TestDetectorJSEmbedsProfile(t *testing.T) {
	reg := sites.NewRegistry()
	m := reg.Resolve("https://www.amazon.in/dp/X")

	sel, err := json.Marshal(m.Profile.Selectors)
	require.NoError(t, err)
	js := fmt.Sprintf(detectorJS, string(sel), 8000, 10)

	assert.Contains(t, js, "#buy-now-button")
	assert.Contains(t, js, "__spendguardHooked")
	assert.Contains(t, js, "data-spendguard") // marking attribute, via dataset
	assert.Contains(t, js, "setTimeout")
	assert.NotContains(t, js, "%s")
	assert.False(t, strings.Contains(js, "%!"), "format verb mismatch: %s", js[:200])
}

func TestPageEventDecoding(t *testing.T) {
	raw := `[{"type":"purchase_click","control":"buy_now","url":"https://x/p","clicks":[1,2,3],"startMs":100,"ts":5100,"scroll":420.5}]`
	var events []pageEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &events))
	require.Len(t, events, 1)

	pe := events[0]
	assert.Equal(t, string(KindPurchaseClick), pe.Type)
	assert.Equal(t, "buy_now", pe.Control)
	assert.Equal(t, []int64{1, 2, 3}, pe.Clicks)
	assert.Equal(t, int64(100), pe.StartMs)
	assert.InDelta(t, 420.5, pe.Scroll, 0.001)
}
