package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordProviderAttempt(t *testing.T) {
	before := testutil.ToFloat64(ProviderAttemptsTotal.WithLabelValues("metrics-test", "error"))
	RecordProviderAttempt("metrics-test", errors.New("boom"))
	RecordProviderAttempt("metrics-test", nil)

	assert.Equal(t, before+1, testutil.ToFloat64(ProviderAttemptsTotal.WithLabelValues("metrics-test", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ProviderAttemptsTotal.WithLabelValues("metrics-test", "success")))
}

func TestUpdateJobMetrics(t *testing.T) {
	UpdateJobMetrics("metrics-test-job", time.Now().Add(-2*time.Second), errors.New("failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(ScheduledJobFailuresTotal.WithLabelValues("metrics-test-job")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(ScheduledJobLastDurationSeconds.WithLabelValues("metrics-test-job")), 2.0)
}

func TestUpdateDBPoolMetrics(t *testing.T) {
	UpdateDBPoolMetrics("metrics-test-pool", 10, 7, 3, 42)
	UpdateDBPoolMetrics("metrics-test-pool", 10, 6, 4, 45)

	assert.Equal(t, 4.0, testutil.ToFloat64(DBPoolAcquiredConns.WithLabelValues("metrics-test-pool")))
	assert.Equal(t, 45.0, testutil.ToFloat64(DBPoolAcquires.WithLabelValues("metrics-test-pool")))
}
