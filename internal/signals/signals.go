// Package signals derives pressure-tactic and behavior heuristics for the
// decision engine. These enrich the decision input; they are not hard
// guarantees.
package signals

import "strings"

// PageSignals lists the pressure-tactic phrases found on the page,
// deduplicated, lowercase.
type PageSignals struct {
	UrgencySignals    []string `json:"urgency_signals"`
	DiscountSignals   []string `json:"discount_signals"`
	EmotionalTriggers []string `json:"emotional_triggers"`
}

// BehaviorSignals summarize the user's interaction pattern for the current
// page view. Reset on navigation.
type BehaviorSignals struct {
	RapidClicking  bool    `json:"rapid_clicking"`
	QuickDecision  bool    `json:"quick_decision"`
	TimeOnPageMs   int64   `json:"time_on_page_ms"`
	ScrollDistance float64 `json:"scroll_distance"`
}

// Empty reports whether no behavior signal fired.
func (b BehaviorSignals) Empty() bool {
	return !b.RapidClicking && !b.QuickDecision && b.ScrollDistance == 0
}

const (
	// ClickWindowSize bounds the click history ring buffer.
	ClickWindowSize = 10
	// RapidClickCount within RapidClickWindowMs flags rapid clicking.
	RapidClickCount    = 5
	RapidClickWindowMs = 5000
	// QuickDecisionMs: a purchase attempt before this much time on page
	// counts as a quick decision.
	QuickDecisionMs = 30_000
)

var urgencyKeywords = []string{
	"limited time", "hurry", "ends soon", "last chance", "flash sale",
	"only a few left", "selling fast", "while stocks last", "offer ends",
	"today only", "almost gone", "deal of the day",
}

var discountKeywords = []string{
	"% off", "discount", "clearance", "mega sale", "price drop",
	"lowest price", "best price", "save big", "special offer",
}

var emotionalKeywords = []string{
	"you deserve", "treat yourself", "don't miss", "exclusive",
	"must have", "bestseller", "trending now", "everyone's buying",
	"be the first",
}

// DetectPageSignals tests the keyword tables against a visible-text sample.
// Case-insensitive substring test; each phrase counted once.
func DetectPageSignals(textSample string) PageSignals {
	lower := strings.ToLower(textSample)
	return PageSignals{
		UrgencySignals:    matchAll(lower, urgencyKeywords),
		DiscountSignals:   matchAll(lower, discountKeywords),
		EmotionalTriggers: matchAll(lower, emotionalKeywords),
	}
}

func matchAll(lower string, keywords []string) []string {
	var found []string
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

// DetectBehaviorSignals evaluates the bounded click history against the
// clock. clickTimesMs carries at most ClickWindowSize entries, newest last;
// older entries were already evicted by the ring buffer. Monotonic: more
// clicks inside the window can only turn rapidClicking on, never off.
func DetectBehaviorSignals(clickTimesMs []int64, pageStartMs, nowMs int64, scrollDistance float64) BehaviorSignals {
	recent := 0
	for _, ts := range clickTimesMs {
		if nowMs-ts <= RapidClickWindowMs {
			recent++
		}
	}

	elapsed := nowMs - pageStartMs
	if elapsed < 0 {
		elapsed = 0
	}

	return BehaviorSignals{
		RapidClicking:  recent >= RapidClickCount,
		QuickDecision:  elapsed < QuickDecisionMs,
		TimeOnPageMs:   elapsed,
		ScrollDistance: scrollDistance,
	}
}

// AllIndicators flattens page signals into one list for the purchase
// context's urgency indicators.
func (p PageSignals) AllIndicators() []string {
	out := make([]string, 0, len(p.UrgencySignals)+len(p.DiscountSignals)+len(p.EmotionalTriggers))
	out = append(out, p.UrgencySignals...)
	out = append(out, p.DiscountSignals...)
	out = append(out, p.EmotionalTriggers...)
	return out
}
