package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingFor(t *testing.T) {
	p, ok := PricingFor("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, 2.50, p.InputPer1M)

	p, ok = PricingFor("gpt-4o-mini-2024-07-18")
	require.True(t, ok)
	assert.Equal(t, 0.150, p.InputPer1M)

	p, ok = PricingFor("GPT-4-turbo-preview")
	require.True(t, ok)
	assert.Equal(t, 10.00, p.InputPer1M)

	_, ok = PricingFor("llama3")
	assert.False(t, ok)
}

func TestCalculateCost(t *testing.T) {
	in, out, total := CalculateCost(1_000_000, 500_000, "gpt-4o")
	assert.InDelta(t, 2.50, in, 1e-9)
	assert.InDelta(t, 5.00, out, 1e-9)
	assert.InDelta(t, 7.50, total, 1e-9)

	_, _, total = CalculateCost(1000, 1000, "unknown")
	assert.Zero(t, total)
}

func TestTrackerAggregatesPerRun(t *testing.T) {
	tracker := NewTracker()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return clock }

	tracker.StartRun("run-a")
	tracker.Record("run-a", "gpt-4o", 1000, 100)
	tracker.Record("run-a", "gpt-4o-mini", 2000, 200)
	tracker.Record("run-b", "gpt-4o", 10, 10)

	snap, ok := tracker.Snapshot("run-a")
	require.True(t, ok)
	assert.Equal(t, 2, snap.Calls)
	assert.Equal(t, 3000, snap.InputTokens)
	assert.Equal(t, 3300, snap.TotalTokens)
	assert.Len(t, snap.ByModel, 2)
	assert.Equal(t, 2, tracker.Active())

	clock = clock.Add(5 * time.Second)
	final := tracker.EndRun("run-a")
	assert.Equal(t, 5*time.Second, final.Duration())
	assert.Equal(t, 1, tracker.Active())

	_, ok = tracker.Snapshot("run-a")
	assert.False(t, ok)

	empty := tracker.EndRun("never-started")
	assert.Equal(t, 0, empty.Calls)
}
