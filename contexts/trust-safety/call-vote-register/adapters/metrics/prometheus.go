package metricsadapter

import (
	"time"

	"istruecaller/contexts/trust-safety/call-vote-register/domain/entities"
	"istruecaller/contexts/trust-safety/call-vote-register/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "istruecaller"
	Subsystem = "register"
)

// RegisterMetrics exports register activity. Labels are bounded enums; call
// ids are never used as label values.
type RegisterMetrics struct {
	VotesAdded      *prometheus.CounterVec
	Verdicts        *prometheus.CounterVec
	Clears          *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	Checkpoints     *prometheus.CounterVec
}

// NewRegisterMetrics registers the collectors on reg. A nil reg falls back to
// the process-wide default registerer.
func NewRegisterMetrics(reg prometheus.Registerer) *RegisterMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &RegisterMetrics{
		VotesAdded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "votes_added_total",
				Help:      "Votes appended to the register by ballot shape",
			},
			[]string{"ballot"},
		),
		Verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "verdicts_total",
				Help:      "Verdicts computed by outcome",
			},
			[]string{"verdict"},
		),
		Clears: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "clears_total",
				Help:      "Register clears by scope",
			},
			[]string{"scope"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "command_duration_seconds",
				Help:      "Latency of register operations",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14), // 50us to ~400ms
			},
			[]string{"operation"},
		),
		Checkpoints: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "checkpoints_total",
				Help:      "Checkpoint cycles by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *RegisterMetrics) VoteRecorded(shape entities.BallotShape) {
	m.VotesAdded.WithLabelValues(string(shape)).Inc()
}

func (m *RegisterMetrics) VerdictIssued(verdict entities.Verdict) {
	m.Verdicts.WithLabelValues(string(verdict)).Inc()
}

func (m *RegisterMetrics) RegisterCleared(scope string) {
	m.Clears.WithLabelValues(scope).Inc()
}

func (m *RegisterMetrics) ObserveCommand(operation string, elapsed time.Duration) {
	m.CommandDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *RegisterMetrics) CheckpointFinished(outcome string) {
	m.Checkpoints.WithLabelValues(outcome).Inc()
}

var _ ports.RegisterMetrics = (*RegisterMetrics)(nil)
