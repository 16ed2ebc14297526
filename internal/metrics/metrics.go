package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Voting provides observability for ballot casting and tallying.
// A nil *Voting is valid and records nothing.
type Voting struct {
	// Cast outcomes by result: accepted, already_voted, ended, ...
	CastOutcome *prometheus.CounterVec

	CastLatency prometheus.Histogram

	TallyLatency prometheus.Histogram

	// Anonymized ballots that failed to open during audit.
	DecryptFailures prometheus.Counter
}

// New registers the voting metrics with the default registry. Call it once per process.
func New() *Voting {
	return &Voting{
		CastOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "election_cast_outcomes_total",
			Help: "Total ballot cast attempts by outcome",
		}, []string{"outcome"}),

		CastLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "election_cast_duration_seconds",
			Help:    "Duration of a ballot cast including the storage transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		TallyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "election_tally_duration_seconds",
			Help:    "Duration of a per-position tally",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		DecryptFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "election_decrypt_failures_total",
			Help: "Anonymized ballots that could not be decrypted",
		}),
	}
}

func (m *Voting) ObserveCast(outcome string, d time.Duration) {
	if m != nil {
		m.CastOutcome.WithLabelValues(outcome).Inc()
		m.CastLatency.Observe(d.Seconds())
	}
}

func (m *Voting) ObserveTally(d time.Duration) {
	if m != nil {
		m.TallyLatency.Observe(d.Seconds())
	}
}

func (m *Voting) IncrementDecryptFailure() {
	if m != nil {
		m.DecryptFailures.Inc()
	}
}
