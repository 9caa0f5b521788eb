// Package decision turns a purchase context plus wellness and behavior
// signals into a risk decision. External reasoning is tried first; any
// timeout, error, or degenerate answer falls through to deterministic
// threshold rules.
package decision

import (
	"spendguard-agent/internal/extract"
	"spendguard-agent/internal/signals"
	"spendguard-agent/internal/wellness"
)

// Risk levels, ordered.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Decision sources.
const (
	SourceExternal  = "external"
	SourceRuleBased = "rule-based"
)

// Input is everything the engine reads for one purchase event.
type Input struct {
	Context            extract.PurchaseContext
	Wellness           wellness.State
	Behavior           signals.BehaviorSignals
	Page               signals.PageSignals
	InterventionsToday int
}

// RiskDecision is produced once per purchase event and immutable once
// handed to the intervention state machine.
type RiskDecision struct {
	ShouldIntervene bool     `json:"should_intervene"`
	RiskLevel       string   `json:"risk_level"`
	Reasons         []string `json:"reasons"`
	Recommendations []string `json:"recommendations"`
	Confidence      int      `json:"confidence"`
	Source          string   `json:"source"`
	// DelayMinutes drives the intervention countdown.
	DelayMinutes int `json:"delay_minutes"`
	// StressImpact and BudgetImpact carry the external engine's numeric
	// reads when available; zero-valued on the rules path.
	StressImpact float64 `json:"stress_impact,omitempty"`
	BudgetImpact float64 `json:"budget_impact,omitempty"`
}

// Summary is a compact one-line description for outcome logging.
func (d RiskDecision) Summary() string {
	s := d.RiskLevel + "/" + d.Source
	if d.ShouldIntervene {
		return s + "/intervene"
	}
	return s + "/proceed"
}

func riskRank(level string) int {
	switch level {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

func escalate(level string) string {
	switch level {
	case RiskLow:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// DelayMinutesFor maps the wellness stress level to the countdown length
// used when the decision carries no explicit delay.
func DelayMinutesFor(stressLevel string, fallback int) int {
	switch stressLevel {
	case "High":
		return 10
	case "Medium":
		return 5
	default:
		if fallback > 0 {
			return fallback
		}
		return 3
	}
}
