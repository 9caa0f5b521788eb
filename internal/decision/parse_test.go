package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExternal(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		p, err := parseExternal(`RISK_LEVEL: medium
INTERVENE: yes
STRESS_IMPACT: 6
BUDGET_IMPACT: 30
FACTORS:
- factor one
- factor two
RECOMMENDATIONS:
- rec one`)
		require.NoError(t, err)
		assert.Equal(t, RiskMedium, p.riskLevel)
		assert.True(t, p.intervene)
		assert.InDelta(t, 6, p.stressImpact, 0.001)
		assert.InDelta(t, 30, p.budgetImpact, 0.001)
		assert.Equal(t, []string{"factor one", "factor two"}, p.reasons)
		assert.Equal(t, []string{"rec one"}, p.recommendations)
	})

	t.Run("defaults and clamps", func(t *testing.T) {
		tests := []struct {
			name   string
			text   string
			check  func(t *testing.T, p parsed)
		}{
			{"invalid risk defaults low", "RISK_LEVEL: catastrophic\nFACTORS:\n- x", func(t *testing.T, p parsed) {
				assert.Equal(t, RiskLow, p.riskLevel)
			}},
			{"missing risk defaults low", "FACTORS:\n- x", func(t *testing.T, p parsed) {
				assert.Equal(t, RiskLow, p.riskLevel)
			}},
			{"missing intervene defaults false", "FACTORS:\n- x", func(t *testing.T, p parsed) {
				assert.False(t, p.intervene)
			}},
			{"stress clamps high", "STRESS_IMPACT: 99\nFACTORS:\n- x", func(t *testing.T, p parsed) {
				assert.InDelta(t, 10, p.stressImpact, 0.001)
			}},
			{"stress clamps low", "STRESS_IMPACT: -4\nFACTORS:\n- x", func(t *testing.T, p parsed) {
				assert.InDelta(t, 1, p.stressImpact, 0.001)
			}},
			{"stress garbage defaults five", "STRESS_IMPACT: severe\nFACTORS:\n- x", func(t *testing.T, p parsed) {
				assert.InDelta(t, 5, p.stressImpact, 0.001)
			}},
			{"budget clamps", "BUDGET_IMPACT: 250\nFACTORS:\n- x", func(t *testing.T, p parsed) {
				assert.InDelta(t, 100, p.budgetImpact, 0.001)
			}},
			{"budget percent sign tolerated", "BUDGET_IMPACT: 40%\nFACTORS:\n- x", func(t *testing.T, p parsed) {
				assert.InDelta(t, 40, p.budgetImpact, 0.001)
			}},
			{"intervene true spelling", "INTERVENE: true\nFACTORS:\n- x", func(t *testing.T, p parsed) {
				assert.True(t, p.intervene)
			}},
			{"case insensitive labels", "risk_level: HIGH\nfactors:\n- x", func(t *testing.T, p parsed) {
				assert.Equal(t, RiskHigh, p.riskLevel)
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p, err := parseExternal(tt.text)
				require.NoError(t, err)
				tt.check(t, p)
			})
		}
	})

	t.Run("bullet variants", func(t *testing.T) {
		p, err := parseExternal(`FACTORS:
* star bullet
• dot bullet
1. numbered
2) parenthesized`)
		require.NoError(t, err)
		assert.Equal(t, []string{"star bullet", "dot bullet", "numbered", "parenthesized"}, p.reasons)
	})

	t.Run("malformed when no reasons and no recommendations", func(t *testing.T) {
		for _, text := range []string{
			"",
			"RISK_LEVEL: high\nINTERVENE: yes\nSTRESS_IMPACT: 9",
			"The purchase looks risky to me, please be careful.",
			"FACTORS:\nRECOMMENDATIONS:",
		} {
			_, err := parseExternal(text)
			assert.ErrorIs(t, err, errMalformed, "text %q", text)
		}
	})

	t.Run("recommendations alone suffice", func(t *testing.T) {
		p, err := parseExternal("RECOMMENDATIONS:\n- wait a day")
		require.NoError(t, err)
		assert.Empty(t, p.reasons)
		assert.Equal(t, []string{"wait a day"}, p.recommendations)
	})
}
