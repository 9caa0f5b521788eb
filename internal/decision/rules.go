package decision

import (
	"fmt"

	"spendguard-agent/internal/config"
)

// ruleBasedConfidence signals reduced trust relative to external answers.
const ruleBasedConfidence = 65

// ruleBased is the deterministic fallback path. Fully specified, exercised
// by tests without the external service.
func ruleBased(in Input, cfg config.DecisionConfig) RiskDecision {
	level := RiskLow
	var reasons []string

	switch {
	case in.Context.Amount > cfg.HighAmountThreshold:
		level = RiskHigh
		reasons = append(reasons, fmt.Sprintf("Large purchase of %.2f %s exceeds your high-spend threshold", in.Context.Amount, in.Context.Currency))
	case in.Context.Amount > cfg.MediumAmountThreshold:
		level = RiskMedium
		reasons = append(reasons, fmt.Sprintf("Purchase of %.2f %s is above your typical spend", in.Context.Amount, in.Context.Currency))
	}

	if in.Wellness.StressLevel == "High" {
		level = escalate(level)
		reasons = append(reasons, "Your stress level is currently high, which often drives impulse spending")
	}

	if cfg.DailyInterventionLimit > 0 && in.InterventionsToday >= cfg.DailyInterventionLimit {
		level = RiskHigh
		reasons = append(reasons, fmt.Sprintf("This is already your %d%s flagged purchase today", in.InterventionsToday+1, ordinal(in.InterventionsToday+1)))
	}

	if in.Behavior.RapidClicking {
		reasons = append(reasons, "Rapid clicking suggests a rushed decision")
	}
	if in.Behavior.QuickDecision {
		reasons = append(reasons, "You have been on this page for under thirty seconds")
	}
	if len(in.Page.UrgencySignals) > 0 {
		reasons = append(reasons, "This page is using urgency tactics to push the sale")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "Amount is within your normal spending range")
	}

	return RiskDecision{
		ShouldIntervene: level != RiskLow,
		RiskLevel:       level,
		Reasons:         reasons,
		Recommendations: recommendFor(in, level),
		Confidence:      ruleBasedConfidence,
		Source:          SourceRuleBased,
	}
}

// recommendFor picks advice from a small table keyed by amount bracket and
// category.
func recommendFor(in Input, level string) []string {
	var recs []string

	switch in.Context.Category {
	case "electronics":
		recs = append(recs, "Check if last year's model covers your needs at a lower price")
	case "fashion":
		recs = append(recs, "Look at what you already own before adding to your wardrobe")
	case "food":
		recs = append(recs, "Cooking at home tonight could save most of this order")
	case "beauty":
		recs = append(recs, "Finish products you already have before restocking")
	case "furniture":
		recs = append(recs, "Measure your space and compare secondhand options first")
	}

	switch level {
	case RiskHigh:
		recs = append(recs, "Sleep on it: revisit this purchase tomorrow with fresh eyes")
		if in.Wellness.SavingsRunway != "" {
			recs = append(recs, fmt.Sprintf("Your savings runway is %s; a purchase this size shortens it", in.Wellness.SavingsRunway))
		}
	case RiskMedium:
		recs = append(recs, "Compare prices on at least one other site before buying")
	default:
		recs = append(recs, "This looks fine, but a quick price comparison never hurts")
	}

	return recs
}

func ordinal(n int) string {
	switch n % 10 {
	case 1:
		if n%100 != 11 {
			return "st"
		}
	case 2:
		if n%100 != 12 {
			return "nd"
		}
	case 3:
		if n%100 != 13 {
			return "rd"
		}
	}
	return "th"
}
