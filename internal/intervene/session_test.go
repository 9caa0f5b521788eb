package intervene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendguard-agent/internal/decision"
)

func interveneDecision() decision.RiskDecision {
	return decision.RiskDecision{
		ShouldIntervene: true,
		RiskLevel:       decision.RiskHigh,
		DelayMinutes:    5,
		Reasons:         []string{"expensive"},
	}
}

func TestHappyPathProceeded(t *testing.T) {
	s := NewSession("tab-1")
	assert.Equal(t, StatusIdle, s.Status())

	require.NoError(t, s.Begin())
	assert.Equal(t, StatusAnalyzing, s.Status())
	assert.False(t, s.StartedAt.IsZero())

	require.NoError(t, s.Present(interveneDecision()))
	assert.Equal(t, StatusPresenting, s.Status())
	assert.Equal(t, 300, s.TimerSeconds)

	require.NoError(t, s.Resolve(StatusProceeded))
	assert.Equal(t, StatusProceeded, s.Status())

	require.NoError(t, s.Reset())
	assert.Equal(t, StatusIdle, s.Status())
	assert.Zero(t, s.TimerSeconds)
}

func TestResolutionOutcomes(t *testing.T) {
	for _, outcome := range []Status{StatusProceeded, StatusCancelled, StatusAutoExpired} {
		s := NewSession("tab-1")
		require.NoError(t, s.Begin())
		require.NoError(t, s.Present(interveneDecision()))
		require.NoError(t, s.Resolve(outcome))
		assert.Equal(t, outcome, s.Status())
		assert.True(t, s.Status().Terminal())
	}
}

func TestAnalyzingResolvesWithoutOverlay(t *testing.T) {
	// A proceed decision or fail-open ends the session before any
	// overlay existed.
	s := NewSession("tab-1")
	require.NoError(t, s.Begin())
	require.NoError(t, s.Resolve(StatusProceeded))

	s2 := NewSession("tab-2")
	require.NoError(t, s2.Begin())
	assert.Error(t, s2.Resolve(StatusCancelled), "nothing to cancel during analysis")
}

func TestInvalidTransitions(t *testing.T) {
	t.Run("present before begin", func(t *testing.T) {
		s := NewSession("tab-1")
		assert.Error(t, s.Present(interveneDecision()))
	})

	t.Run("double begin", func(t *testing.T) {
		s := NewSession("tab-1")
		require.NoError(t, s.Begin())
		assert.Error(t, s.Begin())
	})

	t.Run("present with proceed decision", func(t *testing.T) {
		s := NewSession("tab-1")
		require.NoError(t, s.Begin())
		d := interveneDecision()
		d.ShouldIntervene = false
		assert.Error(t, s.Present(d))
	})

	t.Run("resolve to non-terminal", func(t *testing.T) {
		s := NewSession("tab-1")
		require.NoError(t, s.Begin())
		require.NoError(t, s.Present(interveneDecision()))
		assert.Error(t, s.Resolve(StatusAnalyzing))
	})

	t.Run("resolve from idle", func(t *testing.T) {
		s := NewSession("tab-1")
		assert.Error(t, s.Resolve(StatusCancelled))
	})

	t.Run("reset before terminal", func(t *testing.T) {
		s := NewSession("tab-1")
		require.NoError(t, s.Begin())
		assert.Error(t, s.Reset())
	})

	t.Run("double resolve", func(t *testing.T) {
		s := NewSession("tab-1")
		require.NoError(t, s.Begin())
		require.NoError(t, s.Present(interveneDecision()))
		require.NoError(t, s.Resolve(StatusCancelled))
		assert.Error(t, s.Resolve(StatusProceeded))
	})
}
