package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_RecordHelpers(t *testing.T) {
	c := NewCollectorWithRegistry("test", prometheus.NewRegistry())

	c.RecordGatewayRequest("list_analysis_results", "200", 15*time.Millisecond)
	c.RecordGatewayRequest("list_analysis_results", "200", 25*time.Millisecond)
	c.RecordStoreOperation("fetch_sites", "failure")
	c.SetHeldAnalysisResults(3)
	c.RecordExport("csv", 512)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.GatewayRequestsTotal.WithLabelValues("list_analysis_results", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StoreOperationsTotal.WithLabelValues("fetch_sites", "failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.HeldAnalysisResults))
	assert.Equal(t, 512.0, testutil.ToFloat64(c.ExportBytesTotal.WithLabelValues("csv")))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollectorWithRegistry("test", prometheus.NewRegistry())
		NewCollectorWithRegistry("test", prometheus.NewRegistry())
	})
}

func TestTimer_ObserveDuration(t *testing.T) {
	c := NewCollectorWithRegistry("test", prometheus.NewRegistry())
	timer := c.NewTimer(c.DBQueryDuration.WithLabelValues("insert_calculation"))

	assert.GreaterOrEqual(t, timer.ObserveDuration(), time.Duration(0))
	assert.Equal(t, 1, testutil.CollectAndCount(c.DBQueryDuration))
}
