// Package watch drives the browser: it tracks tabs, instruments their
// pages with the purchase detector, and pumps page events to the
// coordinator.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"spendguard-agent/internal/config"
	"spendguard-agent/internal/sites"
	"spendguard-agent/internal/store"
)

// keyWatchedTabs persists tab metadata across restarts.
const keyWatchedTabs = "watched_tabs"

// Tab is the public metadata for a watched page.
type Tab struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Site       string    `json:"site,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type tabRecord struct {
	meta   Tab
	page   *rod.Page
	match  sites.Match
	cancel context.CancelFunc
}

// Manager owns the browser connection and the watched-tab registry.
type Manager struct {
	cfg      config.BrowserConfig
	monitor  config.MonitorConfig
	failOpen time.Duration
	registry *sites.Registry
	st       *store.Store
	events   chan Event

	mu         sync.RWMutex
	browser    *rod.Browser
	tabs       map[string]*tabRecord
	controlURL string
}

// NewManager wires the manager; Start must run before Watch. failOpen is
// how long a suppressed click waits in the page before releasing itself.
func NewManager(cfg config.BrowserConfig, monitor config.MonitorConfig, failOpen time.Duration, registry *sites.Registry, st *store.Store) *Manager {
	if failOpen <= 0 {
		failOpen = 8 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		monitor:  monitor,
		failOpen: failOpen,
		registry: registry,
		st:       st,
		events:   make(chan Event, 64),
		tabs:     make(map[string]*tabRecord),
	}
}

// Events is the stream the coordinator consumes.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Start connects to a running Chrome or launches one via Rod's launcher.
func (m *Manager) Start(ctx context.Context) error {
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		log.Printf("stale browser connection, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.mu.Lock()
		m.tabs = make(map[string]*tabRecord)
		m.mu.Unlock()
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
		if len(m.cfg.Launch) > 1 {
			for _, rawFlag := range m.cfg.Launch[1:] {
				flagStr := strings.TrimLeft(rawFlag, "-")
				name, val, hasVal := strings.Cut(flagStr, "=")
				if hasVal {
					launch = launch.Set(flags.Flag(name), val)
				} else {
					launch = launch.Set(flags.Flag(name))
				}
			}
		}
		url, err := launch.Launch()
		if err != nil {
			fallback := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
			if alt, altErr := fallback.Launch(); altErr == nil {
				controlURL = alt
			} else {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
		} else {
			controlURL = url
		}
	}
	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	m.browser = browser
	m.controlURL = controlURL
	log.Printf("browser connected at %s", controlURL)

	m.reattachPersisted(ctx)
	return nil
}

// reattachPersisted best-effort re-binds tabs recorded before a restart.
func (m *Manager) reattachPersisted(ctx context.Context) {
	var saved []Tab
	if ok, err := m.st.Get(keyWatchedTabs, &saved); err != nil || !ok {
		return
	}
	for _, t := range saved {
		if t.TargetID == "" {
			continue
		}
		if _, err := m.AttachTarget(ctx, t.TargetID); err != nil {
			log.Printf("[tab:%s] could not reattach target %s: %v", t.ID, t.TargetID, err)
		}
	}
}

// IsConnected reports whether the browser link is up.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// ControlURL returns the DevTools websocket URL.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// Shutdown stops watching every tab and closes the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.tabs {
		if rec.cancel != nil {
			rec.cancel()
		}
		if rec.page != nil {
			_ = rec.page.Close()
		}
		delete(m.tabs, id)
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	log.Printf("browser shutdown complete")
	return err
}

// List returns metadata for all watched tabs.
func (m *Manager) List() []Tab {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Tab, 0, len(m.tabs))
	for _, rec := range m.tabs {
		out = append(out, rec.meta)
	}
	return out
}

// Page returns the rod handle for a watched tab.
func (m *Manager) Page(tabID string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.tabs[tabID]
	if !ok {
		return nil, false
	}
	return rec.page, true
}

// Match returns the resolved site profile for a watched tab.
func (m *Manager) Match(tabID string) (sites.Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.tabs[tabID]
	if !ok {
		return sites.Match{}, false
	}
	return rec.match, true
}

// Watch opens a new page at url and starts instrumenting it.
func (m *Manager) Watch(ctx context.Context, url string) (*Tab, error) {
	if m.browser == nil {
		return nil, errors.New("browser not connected")
	}
	page, err := m.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	_ = page.Timeout(m.cfg.NavigationTimeout()).WaitLoad()
	return m.track(ctx, page, url)
}

// AttachTarget starts watching an existing browser tab.
func (m *Manager) AttachTarget(ctx context.Context, targetID string) (*Tab, error) {
	if m.browser == nil {
		return nil, errors.New("browser not connected")
	}
	page, err := m.browser.PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}
	url := ""
	if info, err := page.Info(); err == nil {
		url = info.URL
	}
	return m.track(ctx, page, url)
}

func (m *Manager) track(ctx context.Context, page *rod.Page, url string) (*Tab, error) {
	match := m.registry.Resolve(url)
	meta := Tab{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Site:       match.ProfileName,
		Status:     "watching",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	tabCtx, cancel := context.WithCancel(ctx)
	rec := &tabRecord{meta: meta, page: page, match: match, cancel: cancel}

	m.mu.Lock()
	m.tabs[meta.ID] = rec
	m.mu.Unlock()

	go m.pollLoop(tabCtx, meta.ID, page)
	m.persistTabs()

	log.Printf("[tab:%s] watching %s (site=%s)", meta.ID, url, match.ProfileName)
	return &meta, nil
}

// StopTab stops watching without closing the user's page.
func (m *Manager) StopTab(tabID string) bool {
	m.mu.Lock()
	rec, ok := m.tabs[tabID]
	if ok {
		if rec.cancel != nil {
			rec.cancel()
		}
		delete(m.tabs, tabID)
	}
	m.mu.Unlock()
	if ok {
		m.persistTabs()
		log.Printf("[tab:%s] stopped watching", tabID)
	}
	return ok
}

// pollLoop keeps the page instrumented and drains its event buffer.
// Navigation resets the page's JS context, so each tick re-checks the
// hooked flag and re-injects against the freshly resolved site profile.
func (m *Manager) pollLoop(ctx context.Context, tabID string, page *rod.Page) {
	ticker := time.NewTicker(m.cfg.PollInterval())
	defer ticker.Stop()

	failOpenMs := int(m.failOpen.Milliseconds())
	misses := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := page.Info()
			if err != nil {
				misses++
				if misses >= 5 {
					log.Printf("[tab:%s] page gone, dropping", tabID)
					m.StopTab(tabID)
					return
				}
				continue
			}
			misses = 0
			m.noteURL(tabID, info.URL)

			if !isInstrumented(ctx, page) {
				match := m.registry.Resolve(info.URL)
				m.setMatch(tabID, match)
				if err := injectDetector(ctx, page, match.Profile, failOpenMs, m.monitor.HistorySize()); err != nil {
					log.Printf("[tab:%s] inject failed: %v", tabID, err)
					continue
				}
				log.Printf("[tab:%s] instrumented %s (site=%s)", tabID, info.URL, match.ProfileName)
			}

			for _, pe := range drainEvents(ctx, page) {
				ev := Event{
					TabID:          tabID,
					Kind:           Kind(pe.Type),
					Control:        pe.Control,
					Action:         pe.Action,
					URL:            pe.URL,
					ClickTimesMs:   pe.Clicks,
					PageStartMs:    pe.StartMs,
					NowMs:          pe.TS,
					ScrollDistance: pe.Scroll,
				}
				if ev.URL == "" {
					ev.URL = info.URL
				}
				select {
				case m.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (m *Manager) noteURL(tabID, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tabs[tabID]
	if !ok {
		return
	}
	if rec.meta.URL != url {
		rec.meta.URL = url
	}
	rec.meta.LastActive = time.Now()
}

func (m *Manager) setMatch(tabID string, match sites.Match) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.tabs[tabID]; ok {
		rec.match = match
		rec.meta.Site = match.ProfileName
	}
}

func (m *Manager) persistTabs() {
	if err := m.st.Put(keyWatchedTabs, m.List()); err != nil {
		log.Printf("persist watched tabs: %v", err)
	}
}
