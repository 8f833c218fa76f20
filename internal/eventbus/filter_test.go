package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qorzen/kernel/internal/kerrors"
)

func TestFilterMatchesTypesConjunction(t *testing.T) {
	e := NewEvent("widget.created", "api", nil)

	assert.True(t, Filter{Types: []string{"widget.created"}}.Matches(e))
	assert.False(t, Filter{Types: []string{"widget.deleted"}}.Matches(e))
}

func TestFilterSourcesIsExactMembershipNotSubstring(t *testing.T) {
	e := NewEvent("widget.created", "plugin.weather", nil)

	assert.True(t, Filter{Sources: []string{"plugin.weather"}}.Matches(e))
	assert.False(t, Filter{Sources: []string{"plugin"}}.Matches(e),
		"a source clause is an exact set, not a substring match")
}

func TestFilterMetadataPredicatesMustAllMatch(t *testing.T) {
	e := NewEvent("widget.created", "api", nil)
	e.Metadata["region"] = "us-east"
	e.Metadata["tier"] = "gold"

	assert.True(t, Filter{MetadataPredicates: map[string]any{"region": "us-east"}}.Matches(e))
	assert.False(t, Filter{MetadataPredicates: map[string]any{"region": "eu-west"}}.Matches(e))
	assert.False(t, Filter{MetadataPredicates: map[string]any{
		"region": "us-east",
		"tier":   "platinum",
	}}.Matches(e), "every predicate clause must match")
}

func TestFilterMinSeverityExcludesLowerSeverityEvents(t *testing.T) {
	e := NewEvent("disk.warning", "kernel", nil)
	e.Severity = kerrors.SeverityMedium

	assert.True(t, Filter{MinSeverity: kerrors.SeverityLow}.Matches(e))
	assert.True(t, Filter{MinSeverity: kerrors.SeverityMedium}.Matches(e))
	assert.False(t, Filter{MinSeverity: kerrors.SeverityHigh}.Matches(e))
}

func TestBusStatsTracksDeliveredCount(t *testing.T) {
	b := newTestBus(t, DefaultConfig())

	delivered := make(chan struct{}, 8)
	id, err := b.Subscribe("counter", Filter{}, func(context.Context, Event) error {
		delivered <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewEvent("ping", "test", nil)))

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	assert.Eventually(t, func() bool {
		stats, ok := b.Stats(id)
		return ok && stats.DeliveredCount == 1
	}, time.Second, 5*time.Millisecond)
}
