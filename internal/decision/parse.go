package decision

import (
	"errors"
	"strconv"
	"strings"
)

// parsed is the defensive read of the reasoning service's free text.
type parsed struct {
	riskLevel       string
	intervene       bool
	stressImpact    float64
	budgetImpact    float64
	reasons         []string
	recommendations []string
}

var errMalformed = errors.New("reasoning output carries neither reasons nor recommendations")

// parseExternal scans the free text for the labeled fields the prompt asks
// for. Every field has a documented default; out-of-range numerics clamp.
// A payload with no usable reasons AND no usable recommendations is
// malformed: a degenerate answer must not be trusted over the rules.
func parseExternal(text string) (parsed, error) {
	p := parsed{
		riskLevel:    RiskLow,
		stressImpact: 5,
	}

	section := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "RISK_LEVEL:"):
			section = ""
			v := strings.ToLower(valueAfterColon(line))
			if v == RiskLow || v == RiskMedium || v == RiskHigh {
				p.riskLevel = v
			}
		case strings.HasPrefix(upper, "INTERVENE:"):
			section = ""
			v := strings.ToLower(valueAfterColon(line))
			p.intervene = v == "yes" || v == "true"
		case strings.HasPrefix(upper, "STRESS_IMPACT:"):
			section = ""
			p.stressImpact = clampFloat(parseFloatOr(valueAfterColon(line), 5), 1, 10)
		case strings.HasPrefix(upper, "BUDGET_IMPACT:"):
			section = ""
			p.budgetImpact = clampFloat(parseFloatOr(valueAfterColon(line), 0), 0, 100)
		case strings.HasPrefix(upper, "FACTORS:"):
			section = "factors"
			if rest := valueAfterColon(line); rest != "" {
				p.reasons = append(p.reasons, rest)
			}
		case strings.HasPrefix(upper, "RECOMMENDATIONS:"):
			section = "recommendations"
			if rest := valueAfterColon(line); rest != "" {
				p.recommendations = append(p.recommendations, rest)
			}
		default:
			item, ok := bulletItem(line)
			if !ok {
				continue
			}
			switch section {
			case "factors":
				p.reasons = append(p.reasons, item)
			case "recommendations":
				p.recommendations = append(p.recommendations, item)
			}
		}
	}

	if len(p.reasons) == 0 && len(p.recommendations) == 0 {
		return parsed{}, errMalformed
	}
	return p, nil
}

func valueAfterColon(line string) string {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(after)
}

func bulletItem(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) {
			item := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			return item, item != ""
		}
	}
	// Numbered lists: "1. text" / "2) text".
	if len(line) > 2 && line[0] >= '0' && line[0] <= '9' {
		rest := strings.TrimLeft(line, "0123456789")
		if strings.HasPrefix(rest, ". ") || strings.HasPrefix(rest, ") ") {
			item := strings.TrimSpace(rest[2:])
			return item, item != ""
		}
	}
	return "", false
}

func parseFloatOr(s string, fallback float64) float64 {
	// Tolerate trailing prose like "7 (significant)".
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return fallback
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "%"), 64)
	if err != nil {
		return fallback
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
