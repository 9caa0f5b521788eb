package decision

import (
	"fmt"
	"strings"
)

// buildPrompt embeds the full decision input in a structured prompt. The
// output format block mirrors exactly what parseExternal scans for.
func buildPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("You are a financial wellness assistant. A user is about to make an online purchase. ")
	b.WriteString("Assess the risk that this is an impulsive or harmful purchase given their current state.\n\n")

	fmt.Fprintf(&b, "PURCHASE:\n- Item: %s\n- Amount: %.2f %s\n- Category: %s\n- Merchant: %s\n",
		in.Context.ProductName, in.Context.Amount, in.Context.Currency, in.Context.Category, in.Context.Merchant)
	if in.Context.DiscountPercentage > 0 {
		fmt.Fprintf(&b, "- Discount: %.0f%% off (was %.2f)\n", in.Context.DiscountPercentage, in.Context.OriginalPrice)
	}

	fmt.Fprintf(&b, "\nUSER STATE:\n- Stress level: %s (score %.1f)\n- Spending risk: %s\n- Savings runway: %s\n- Interventions already today: %d\n",
		in.Wellness.StressLevel, in.Wellness.StressScore, in.Wellness.SpendingRisk, in.Wellness.SavingsRunway, in.InterventionsToday)

	b.WriteString("\nBEHAVIOR:\n")
	fmt.Fprintf(&b, "- Time on page: %.0fs\n", float64(in.Behavior.TimeOnPageMs)/1000)
	if in.Behavior.RapidClicking {
		b.WriteString("- Rapid clicking detected\n")
	}
	if in.Behavior.QuickDecision {
		b.WriteString("- Very quick decision (under 30s on page)\n")
	}
	if all := in.Page.AllIndicators(); len(all) > 0 {
		fmt.Fprintf(&b, "- Pressure tactics on page: %s\n", strings.Join(all, ", "))
	}

	b.WriteString(`
Respond in EXACTLY this format:
RISK_LEVEL: low|medium|high
INTERVENE: yes|no
STRESS_IMPACT: 1-10
BUDGET_IMPACT: 0-100
FACTORS:
- one factor per line
RECOMMENDATIONS:
- one recommendation per line
`)

	return b.String()
}
