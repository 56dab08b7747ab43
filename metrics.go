package comet

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments the registry and handler update
// as channels are created/destroyed and events are delivered. Grounded on
// the prometheus/client_golang usage in DrBlury-protoflow and
// marcus-qen-legator for equivalent service-level gauges/counters.
//
// Alongside the Prometheus instruments it keeps a plain atomic delivery
// counter, cheap to read synchronously for the admin/status JSON endpoint
// (SPEC_FULL.md §4.6) without reaching into the Prometheus registry -
// the same role the teacher's hub.sentMsgs field played for ServerStatus
// (status.go).
type Metrics struct {
	liveChannels prometheus.Gauge
	waiters      prometheus.Gauge
	delivered    prometheus.Counter
	failed       prometheus.Counter

	deliveredCount uint64 // atomic
}

// NewMetrics registers comet's instruments against reg. Passing a nil
// registerer is valid and yields a Metrics whose setters are still safe to
// call; this is the default used by tests that don't care about metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		liveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "comet",
			Name:      "live_channels",
			Help:      "Number of virtual channels currently live in the registry.",
		}),
		waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "comet",
			Name:      "waiters",
			Help:      "Sum of listener counts across channels: each request in the wait phase counts once per channel it waits on.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "comet",
			Name:      "events_delivered_total",
			Help:      "Tagged events whose outcome was reported as delivered.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "comet",
			Name:      "events_failed_total",
			Help:      "Tagged events whose outcome was reported as failed.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.liveChannels, m.waiters, m.delivered, m.failed)
	}
	return m
}

func (m *Metrics) setLiveChannels(n int) {
	if m == nil {
		return
	}
	m.liveChannels.Set(float64(n))
}

func (m *Metrics) addWaiters(delta int) {
	if m == nil {
		return
	}
	m.waiters.Add(float64(delta))
}

func (m *Metrics) reportOutcome(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.delivered.Inc()
		atomic.AddUint64(&m.deliveredCount, 1)
		return
	}
	m.failed.Inc()
}

// DeliveredCount returns the number of tagged events reported delivered
// since startup.
func (m *Metrics) DeliveredCount() uint64 {
	if m == nil {
		return 0
	}
	return atomic.LoadUint64(&m.deliveredCount)
}
