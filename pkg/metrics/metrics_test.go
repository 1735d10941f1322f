package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/prytaneum/townhall-notifier/pkg/connstate"
	"github.com/prytaneum/townhall-notifier/pkg/metrics"
)

func TestConnectionObserver(t *testing.T) {
	tracker := connstate.New(connstate.WithObserver(metrics.ConnectionObserver("metrics-test-broker")))

	before := testutil.ToFloat64(metrics.ConnectionTransitions.WithLabelValues("CONNECTED"))
	tracker.Connecting("metrics-test-broker")
	tracker.Connected("metrics-test-broker")

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ConnectionTransitions.WithLabelValues("CONNECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ConnectionStatus.WithLabelValues("metrics-test-broker", "CONNECTED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ConnectionStatus.WithLabelValues("metrics-test-broker", "CONNECTING")))
}

func TestRetryObserver(t *testing.T) {
	before := testutil.ToFloat64(metrics.RetryAttemptsFailed)
	metrics.RetryObserver("k", 1, errors.New("x"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RetryAttemptsFailed))
}

func TestHandler(t *testing.T) {
	metrics.BatchesSent.Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "townhall_batches_sent_total")
}
