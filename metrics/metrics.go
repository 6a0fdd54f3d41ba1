package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const bundlerNamespace = "bundler"

// BundlerMetrics counts lifecycle decisions. If the admitted counter moves
// while pending/done do not, the batching pipeline is stuck.
type BundlerMetrics struct {
	numAdmitted prometheus.Counter
	numReplaced prometheus.Counter
	numRejected *prometheus.CounterVec

	numMarkedPending prometheus.Counter
	numMarkedDone    prometheus.Counter

	numEventsRecorded prometheus.Counter
}

func NewBundlerMetrics(reg prometheus.Registerer) *BundlerMetrics {
	return &BundlerMetrics{
		numAdmitted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: bundlerNamespace,
				Name:      "userops_admitted_total",
				Help:      "The number of user operations admitted as new local records",
			}),

		numReplaced: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: bundlerNamespace,
				Name:      "userops_replaced_total",
				Help:      "The number of settled records reset in place by a replacement",
			}),

		numRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: bundlerNamespace,
				Name:      "userops_rejected_total",
				Help:      "The number of admissions rejected, by reason",
			}, []string{"reason"}),

		numMarkedPending: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: bundlerNamespace,
				Name:      "userops_marked_pending_total",
				Help:      "The number of records transitioned local to pending",
			}),

		numMarkedDone: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: bundlerNamespace,
				Name:      "userops_marked_done_total",
				Help:      "The number of records transitioned pending to done",
			}),

		numEventsRecorded: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: bundlerNamespace,
				Name:      "userop_events_recorded_total",
				Help:      "The number of settlement events written, redeliveries excluded",
			}),
	}
}

func (m *BundlerMetrics) IncAdmitted() {
	m.numAdmitted.Inc()
}

func (m *BundlerMetrics) IncReplaced() {
	m.numReplaced.Inc()
}

func (m *BundlerMetrics) IncRejected(reason string) {
	m.numRejected.WithLabelValues(reason).Inc()
}

func (m *BundlerMetrics) AddMarkedPending(n int) {
	m.numMarkedPending.Add(float64(n))
}

func (m *BundlerMetrics) AddMarkedDone(n int) {
	m.numMarkedDone.Add(float64(n))
}

func (m *BundlerMetrics) IncEventsRecorded() {
	m.numEventsRecorded.Inc()
}
