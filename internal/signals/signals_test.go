package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPageSignals(t *testing.T) {
	text := `HURRY! Limited Time offer, 40% off today.
	Flash Sale ends soon. You deserve this exclusive deal of the day.
	Limited time only, limited time again.`

	got := DetectPageSignals(text)

	assert.Contains(t, got.UrgencySignals, "hurry")
	assert.Contains(t, got.UrgencySignals, "limited time")
	assert.Contains(t, got.UrgencySignals, "flash sale")
	assert.Contains(t, got.UrgencySignals, "ends soon")
	assert.Contains(t, got.DiscountSignals, "% off")
	assert.Contains(t, got.EmotionalTriggers, "you deserve")
	assert.Contains(t, got.EmotionalTriggers, "exclusive")

	// Repeated phrases count once.
	count := 0
	for _, s := range got.UrgencySignals {
		if s == "limited time" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDetectPageSignalsCleanPage(t *testing.T) {
	got := DetectPageSignals("Product specifications. Shipping information. Reviews.")
	assert.Empty(t, got.UrgencySignals)
	assert.Empty(t, got.DiscountSignals)
	assert.Empty(t, got.EmotionalTriggers)
	assert.Empty(t, got.AllIndicators())
}

func TestDetectBehaviorSignalsRapidClicking(t *testing.T) {
	now := int64(100_000)

	t.Run("five recent clicks fire", func(t *testing.T) {
		clicks := []int64{now - 4000, now - 3000, now - 2000, now - 1000, now - 500}
		got := DetectBehaviorSignals(clicks, now-60_000, now, 0)
		assert.True(t, got.RapidClicking)
	})

	t.Run("stale clicks do not fire", func(t *testing.T) {
		clicks := []int64{now - 9000, now - 8000, now - 7000, now - 6000, now - 5500}
		got := DetectBehaviorSignals(clicks, now-60_000, now, 0)
		assert.False(t, got.RapidClicking)
	})

	t.Run("four recent clicks do not fire", func(t *testing.T) {
		clicks := []int64{now - 4000, now - 3000, now - 2000, now - 1000}
		got := DetectBehaviorSignals(clicks, now-60_000, now, 0)
		assert.False(t, got.RapidClicking)
	})

	t.Run("monotonic in click count", func(t *testing.T) {
		clicks := []int64{now - 4000, now - 3000, now - 2000, now - 1000, now - 500}
		base := DetectBehaviorSignals(clicks, now-60_000, now, 0)
		more := DetectBehaviorSignals(append(clicks, now-200, now-100), now-60_000, now, 0)
		if base.RapidClicking {
			assert.True(t, more.RapidClicking)
		}
	})
}

func TestDetectBehaviorSignalsQuickDecision(t *testing.T) {
	now := int64(100_000)

	quick := DetectBehaviorSignals(nil, now-29_999, now, 0)
	assert.True(t, quick.QuickDecision)
	assert.Equal(t, int64(29_999), quick.TimeOnPageMs)

	slow := DetectBehaviorSignals(nil, now-30_000, now, 0)
	assert.False(t, slow.QuickDecision)
}

func TestBehaviorSignalsEmpty(t *testing.T) {
	now := int64(100_000)
	got := DetectBehaviorSignals(nil, now-60_000, now, 0)
	assert.True(t, got.Empty())

	got.ScrollDistance = 1200
	assert.False(t, got.Empty())
}
