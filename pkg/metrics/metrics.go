// Package metrics declares the Prometheus collectors exported by the notifier.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prytaneum/townhall-notifier/pkg/connstate"
)

var (
	ConnectionStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "townhall_connection_status",
		Help: "Current connection status per resource; 1 for the active status, 0 otherwise",
	}, []string{"resource", "status"})
	ConnectionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "townhall_connection_transitions_total",
		Help: "Total number of connection status transitions grouped by target status",
	}, []string{"status"})
	RetryAttemptsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "townhall_retry_failed_attempts_total",
		Help: "Total number of failed attempts seen by the retry coordinator",
	})
	JobsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "townhall_jobs_consumed_total",
		Help: "Total number of broker messages consumed grouped by outcome",
	}, []string{"outcome"})
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "townhall_jobs_processed_total",
		Help: "Total number of delivery jobs processed grouped by kind and outcome",
	}, []string{"kind", "outcome"})
	BatchesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "townhall_batches_sent_total",
		Help: "Total number of recipient batches accepted by the email provider",
	})
	BatchesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "townhall_batches_failed_total",
		Help: "Total number of recipient batches that failed after all retries",
	})
	RecipientsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "townhall_recipients_sent_total",
		Help: "Total number of messages accepted by the email provider",
	})
	RecipientsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "townhall_recipients_rejected_total",
		Help: "Total number of messages the email provider rejected individually",
	})
	RecipientsFiltered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "townhall_recipients_filtered_total",
		Help: "Total number of candidates removed because they unsubscribed",
	})
	RecipientsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "townhall_recipients_invalid_total",
		Help: "Total number of candidates dropped for an undeliverable address",
	})
)

func init() {
	prometheus.MustRegister(ConnectionStatus)
	prometheus.MustRegister(ConnectionTransitions)
	prometheus.MustRegister(RetryAttemptsFailed)
	prometheus.MustRegister(JobsConsumed)
	prometheus.MustRegister(JobsProcessed)
	prometheus.MustRegister(BatchesSent)
	prometheus.MustRegister(BatchesFailed)
	prometheus.MustRegister(RecipientsSent)
	prometheus.MustRegister(RecipientsRejected)
	prometheus.MustRegister(RecipientsFiltered)
	prometheus.MustRegister(RecipientsInvalid)
}

var allStatuses = []connstate.Status{
	connstate.Uninitialized,
	connstate.Connecting,
	connstate.Connected,
	connstate.Retrying,
	connstate.Failed,
	connstate.Disconnected,
}

// ConnectionObserver feeds tracker transitions into the collectors. Only
// resources listed in gauged get a status gauge; per-job retry keys are
// counted but not gauged to keep label cardinality bounded.
func ConnectionObserver(gauged ...string) connstate.Observer {
	set := make(map[string]struct{}, len(gauged))
	for _, name := range gauged {
		set[name] = struct{}{}
	}
	return func(name string, _, to connstate.Status) {
		ConnectionTransitions.WithLabelValues(to.String()).Inc()
		if _, ok := set[name]; !ok {
			return
		}
		for _, s := range allStatuses {
			v := 0.0
			if s == to {
				v = 1
			}
			ConnectionStatus.WithLabelValues(name, s.String()).Set(v)
		}
	}
}

// RetryObserver counts failed attempts of the retry coordinator.
func RetryObserver(string, int, error) {
	RetryAttemptsFailed.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
