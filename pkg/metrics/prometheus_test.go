package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordEventDropped("trade", "no_active_detector")
	r.RecordEventDropped("trade", "no_active_detector")
	r.RecordPublished("TICK_RECEIVED")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventsDropped.WithLabelValues("trade", "no_active_detector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.published.WithLabelValues("TICK_RECEIVED")))
}

func TestSetActiveDetectorResets(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.SetActiveDetector("Alpha")
	r.SetActiveDetector("Beta")

	assert.Equal(t, 1, testutil.CollectAndCount(r.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.active.WithLabelValues("Beta")))
}
