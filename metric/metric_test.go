package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_AllMetricsRegistered(t *testing.T) {
	registry := NewRegistry()

	// Vec metrics without observations don't gather; touch one of each
	registry.Metrics.FramesSent.WithLabelValues("sub").Inc()
	registry.Metrics.RetryAttempts.WithLabelValues("connect").Inc()
	registry.Metrics.ErrorsTotal.WithLabelValues("channel", "read").Inc()

	families, err := registry.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSummary_SumsAcrossLabels(t *testing.T) {
	registry := NewRegistry()

	registry.Metrics.FramesSent.WithLabelValues("sub").Add(3)
	registry.Metrics.FramesSent.WithLabelValues("unsub").Add(3)
	registry.Metrics.PagesFetched.Add(2)

	summary := registry.Summary()

	assert.Equal(t, 6.0, summary["trsync_channel_frames_sent_total"])
	assert.Equal(t, 2.0, summary["trsync_timeline_pages_fetched_total"])
}

func TestSummary_EmptyRegistryHasCounters(t *testing.T) {
	registry := NewRegistry()

	summary := registry.Summary()

	// Plain counters gather at zero even before first increment
	assert.Contains(t, summary, "trsync_timeline_pages_fetched_total")
	assert.Equal(t, 0.0, summary["trsync_timeline_pages_fetched_total"])
}
