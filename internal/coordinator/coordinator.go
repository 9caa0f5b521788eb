// Package coordinator runs the decision pipeline: it consumes page events
// from the watcher, assembles the decision input, and drives the
// intervention session on each tab.
package coordinator

import (
	"context"
	"log"
	"sync"
	"time"

	"spendguard-agent/internal/config"
	"spendguard-agent/internal/decision"
	"spendguard-agent/internal/extract"
	"spendguard-agent/internal/intervene"
	"spendguard-agent/internal/metrics"
	"spendguard-agent/internal/recorder"
	"spendguard-agent/internal/signals"
	"spendguard-agent/internal/sites"
	"spendguard-agent/internal/stats"
	"spendguard-agent/internal/store"
	"spendguard-agent/internal/watch"
	"spendguard-agent/internal/wellness"
)

// TabOps is everything the coordinator does to a page, keyed by tab.
// The watch manager implements it in production.
type TabOps interface {
	Match(tabID string) (sites.Match, bool)
	Snapshot(ctx context.Context, tabID string) extract.Snapshot
	SampleText(ctx context.Context, tabID string) string
	ShowOverlay(ctx context.Context, tabID string, d decision.RiskDecision) error
	RemoveOverlay(ctx context.Context, tabID string)
	ReplayPending(ctx context.Context, tabID string) bool
	ClearPending(ctx context.Context, tabID string)
}

// Evaluator produces risk decisions.
type Evaluator interface {
	Evaluate(ctx context.Context, in decision.Input) decision.RiskDecision
}

// StateProvider supplies the wellness snapshot.
type StateProvider interface {
	GetState(ctx context.Context) wellness.State
}

// OutcomeSink records resolved sessions.
type OutcomeSink interface {
	Record(ctx context.Context, d decision.RiskDecision, pc extract.PurchaseContext, outcome string)
	InterventionsToday() int
}

type tabState struct {
	session    *intervene.Session
	pc         extract.PurchaseContext
	dec        decision.RiskDecision
	graceTimer *time.Timer
	lastScan   time.Time
}

// Coordinator owns the pipeline for every watched tab.
type Coordinator struct {
	cfg      *config.Config
	ops      TabOps
	engine   Evaluator
	wellness StateProvider
	sink     OutcomeSink
	st       *store.Store
	rec      *recorder.Recorder
	events   <-chan watch.Event

	mu   sync.Mutex
	tabs map[string]*tabState
}

// New wires the coordinator. rec may be nil to disable tracing.
func New(cfg *config.Config, ops TabOps, events <-chan watch.Event, engine Evaluator, wp StateProvider, sink OutcomeSink, st *store.Store, rec *recorder.Recorder) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		ops:      ops,
		engine:   engine,
		wellness: wp,
		sink:     sink,
		st:       st,
		rec:      rec,
		events:   events,
		tabs:     make(map[string]*tabState),
	}
}

// Active reports whether monitoring is switched on. Defaults on.
func (c *Coordinator) Active() bool {
	return c.st.GetBool(store.KeyIsActive, true)
}

// SetActive flips monitoring and persists the toggle.
func (c *Coordinator) SetActive(on bool) error {
	return c.st.Put(store.KeyIsActive, on)
}

// Run consumes page events until the context ends.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, ev watch.Event) {
	switch ev.Kind {
	case watch.KindPurchaseClick:
		c.onPurchaseClick(ctx, ev)
	case watch.KindOverlayAction:
		c.onOverlayAction(ctx, ev)
	case watch.KindFailOpen:
		c.onFailOpen(ev)
	default:
		log.Printf("[tab:%s] unknown event kind %q", ev.TabID, ev.Kind)
	}
}

func (c *Coordinator) state(tabID string) *tabState {
	ts, ok := c.tabs[tabID]
	if !ok {
		ts = &tabState{session: intervene.NewSession(tabID)}
		c.tabs[tabID] = ts
	}
	return ts
}

// onPurchaseClick starts analysis for a suppressed click. At most one
// analysis runs per tab; repeated activations while one is in flight are
// dropped so a double click cannot fork the pipeline.
func (c *Coordinator) onPurchaseClick(ctx context.Context, ev watch.Event) {
	if !c.Active() {
		c.ops.ReplayPending(ctx, ev.TabID)
		return
	}

	c.mu.Lock()
	ts := c.state(ev.TabID)
	if ts.session.Status() != intervene.StatusIdle {
		c.mu.Unlock()
		log.Printf("[tab:%s] click ignored, session %s", ev.TabID, ts.session.Status())
		return
	}
	if err := ts.session.Begin(); err != nil {
		c.mu.Unlock()
		log.Printf("[tab:%s] begin analysis: %v", ev.TabID, err)
		return
	}
	c.mu.Unlock()

	match, ok := c.ops.Match(ev.TabID)
	if !ok {
		match = sites.NewRegistry().Resolve(ev.URL)
	}
	metrics.PurchaseEvents.WithLabelValues(match.ProfileName).Inc()

	go c.analyze(ctx, ev, match)
}

// analyze runs off the event loop: page reads, wellness fetch, and the
// decision evaluation under the fail-open budget. A verdict that lands
// after the page released the click is discarded.
func (c *Coordinator) analyze(ctx context.Context, ev watch.Event, match sites.Match) {
	budget := c.analysisBudget()
	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	snap := c.ops.Snapshot(actx, ev.TabID)
	if snap.URL == "" {
		snap.URL = ev.URL
	}
	pc := extract.FromSnapshot(match, snap, c.cfg.Decision.Currency)
	if snap.PriceText == "" && pc.Amount > 0 {
		metrics.ExtractionFallbacks.Inc()
	}

	page := signals.DetectPageSignals(c.ops.SampleText(actx, ev.TabID))
	pc.UrgencyIndicators = page.AllIndicators()
	behavior := signals.DetectBehaviorSignals(ev.ClickTimesMs, ev.PageStartMs, ev.NowMs, ev.ScrollDistance)

	in := decision.Input{
		Context:            pc,
		Wellness:           c.wellness.GetState(actx),
		Behavior:           behavior,
		Page:               page,
		InterventionsToday: c.sink.InterventionsToday(),
	}
	d := c.engine.Evaluate(actx, in)
	c.trace("decision", ev.TabID, map[string]any{"decision": d, "context": pc})

	c.mu.Lock()
	ts := c.state(ev.TabID)
	if ts.session.Status() != intervene.StatusAnalyzing {
		// Fail-open or teardown got here first.
		c.mu.Unlock()
		log.Printf("[tab:%s] decision discarded, session %s", ev.TabID, ts.session.Status())
		return
	}

	if !d.ShouldIntervene {
		_ = ts.session.Resolve(intervene.StatusProceeded)
		_ = ts.session.Reset()
		c.mu.Unlock()
		c.ops.ReplayPending(ctx, ev.TabID)
		log.Printf("[tab:%s] proceed (%s, confidence %d)", ev.TabID, d.RiskLevel, d.Confidence)
		return
	}

	if err := ts.session.Present(d); err != nil {
		c.mu.Unlock()
		log.Printf("[tab:%s] present: %v", ev.TabID, err)
		return
	}
	ts.pc = pc
	ts.dec = d
	grace := time.Duration(d.DelayMinutes)*time.Minute + c.cfg.Intervention.ExpiryGraceDuration()
	ts.graceTimer = time.AfterFunc(grace, func() { c.autoExpire(ctx, ev.TabID) })
	c.mu.Unlock()

	if err := c.ops.ShowOverlay(ctx, ev.TabID, d); err != nil {
		log.Printf("[tab:%s] overlay failed, releasing click: %v", ev.TabID, err)
		c.resolve(ctx, ev.TabID, intervene.StatusProceeded, true)
		return
	}
	log.Printf("[tab:%s] intervening (%s, %d min delay)", ev.TabID, d.RiskLevel, d.DelayMinutes)
}

func (c *Coordinator) onOverlayAction(ctx context.Context, ev watch.Event) {
	switch ev.Action {
	case "proceed":
		c.resolve(ctx, ev.TabID, intervene.StatusProceeded, true)
	case "cancel":
		c.resolve(ctx, ev.TabID, intervene.StatusCancelled, false)
	default:
		log.Printf("[tab:%s] unknown overlay action %q", ev.TabID, ev.Action)
	}
}

// onFailOpen marks the session resolved after the page released the click
// itself. The original action already ran; nothing to replay.
func (c *Coordinator) onFailOpen(ev watch.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.state(ev.TabID)
	if ts.session.Status() != intervene.StatusAnalyzing {
		return
	}
	_ = ts.session.Resolve(intervene.StatusProceeded)
	_ = ts.session.Reset()
	c.trace("fail_open", ev.TabID, nil)
	log.Printf("[tab:%s] fail-open released the click before a verdict", ev.TabID)
}

func (c *Coordinator) autoExpire(ctx context.Context, tabID string) {
	c.resolve(ctx, tabID, intervene.StatusAutoExpired, false)
}

// resolve finishes a presenting session: page cleanup, optional replay,
// outcome bookkeeping. Replays happen at most once; the page-side guard
// backs up the state machine here.
func (c *Coordinator) resolve(ctx context.Context, tabID string, outcome intervene.Status, replay bool) {
	c.mu.Lock()
	ts := c.state(tabID)
	if err := ts.session.Resolve(outcome); err != nil {
		c.mu.Unlock()
		log.Printf("[tab:%s] resolve %s: %v", tabID, outcome, err)
		return
	}
	if ts.graceTimer != nil {
		ts.graceTimer.Stop()
		ts.graceTimer = nil
	}
	pc, d := ts.pc, ts.dec
	_ = ts.session.Reset()
	ts.pc = extract.PurchaseContext{}
	ts.dec = decision.RiskDecision{}
	c.mu.Unlock()

	c.ops.RemoveOverlay(ctx, tabID)
	if replay {
		c.ops.ReplayPending(ctx, tabID)
	} else {
		c.ops.ClearPending(ctx, tabID)
	}

	out := outcomeName(outcome)
	metrics.InterventionsTotal.WithLabelValues(out).Inc()
	c.sink.Record(ctx, d, pc, out)
	c.trace("outcome", tabID, map[string]any{"outcome": out})
	log.Printf("[tab:%s] session resolved: %s", tabID, out)
}

func outcomeName(s intervene.Status) string {
	switch s {
	case intervene.StatusProceeded:
		return stats.OutcomeProceeded
	case intervene.StatusCancelled:
		return stats.OutcomeCancelled
	default:
		return stats.OutcomeAutoExpired
	}
}

// analysisBudget caps the decision path under the page's fail-open timer
// so verdicts land before the click releases itself.
func (c *Coordinator) analysisBudget() time.Duration {
	failOpen := c.cfg.Intervention.FailOpenDeadline()
	margin := 2 * c.cfg.Browser.PollInterval()
	if failOpen <= margin {
		return failOpen / 2
	}
	return failOpen - margin
}

// AmbientScan samples one tab's page for pressure signals outside any
// click, honoring the per-tab throttle. Click-triggered analysis never
// goes through here.
func (c *Coordinator) AmbientScan(ctx context.Context, tabID string) bool {
	interval := c.cfg.Monitor.CheckInterval()

	c.mu.Lock()
	ts := c.state(tabID)
	if !ts.lastScan.IsZero() && time.Since(ts.lastScan) < interval {
		c.mu.Unlock()
		return false
	}
	ts.lastScan = time.Now()
	c.mu.Unlock()

	page := signals.DetectPageSignals(c.ops.SampleText(ctx, tabID))
	if len(page.AllIndicators()) > 0 {
		c.trace("ambient_signals", tabID, page)
	}
	return true
}

// Analyze runs the decision pipeline for a tab on demand, outside any
// click. No session state changes and nothing is suppressed or replayed;
// the caller just gets the verdict.
func (c *Coordinator) Analyze(ctx context.Context, tabID string) (decision.RiskDecision, extract.PurchaseContext) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.Reasoning.CallTimeout())
	defer cancel()

	match, ok := c.ops.Match(tabID)
	if !ok {
		match = sites.Match{ProfileName: sites.GenericProfileName, Profile: sites.NewRegistry().Generic()}
	}
	snap := c.ops.Snapshot(actx, tabID)
	pc := extract.FromSnapshot(match, snap, c.cfg.Decision.Currency)
	page := signals.DetectPageSignals(c.ops.SampleText(actx, tabID))
	pc.UrgencyIndicators = page.AllIndicators()

	d := c.engine.Evaluate(actx, decision.Input{
		Context:            pc,
		Wellness:           c.wellness.GetState(actx),
		Page:               page,
		InterventionsToday: c.sink.InterventionsToday(),
	})
	c.trace("on_demand_analysis", tabID, map[string]any{"decision": d, "context": pc})
	return d, pc
}

// TabLister enumerates watched tabs for the ambient loop.
type TabLister interface {
	List() []watch.Tab
}

// RunAmbient periodically sweeps all watched tabs through AmbientScan.
// The per-tab throttle inside AmbientScan sets the effective cadence; the
// ticker just has to be at least as fine.
func (c *Coordinator) RunAmbient(ctx context.Context, lister TabLister) {
	tick := c.cfg.Monitor.CheckInterval() / 4
	if tick < time.Second {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Active() {
				continue
			}
			for _, tab := range lister.List() {
				c.AmbientScan(ctx, tab.ID)
			}
		}
	}
}

func (c *Coordinator) trace(kind, tabID string, data any) {
	if c.rec != nil {
		c.rec.Trace(kind, tabID, data)
	}
}
