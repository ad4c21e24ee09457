package piecesync

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	alertsDispatched *prometheus.CounterVec
	pieceWaiters     prometheus.Gauge
	readWaiters      prometheus.Gauge
	readRequests     prometheus.Counter
	readsDeduped     prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		alertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "piecesync_alerts_dispatched_total",
			Help: "Engine alerts seen by the alert pump, by kind.",
		}, []string{"kind"}),
		pieceWaiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "piecesync_piece_waiters",
			Help: "Pieces that callers are waiting to complete.",
		}),
		readWaiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "piecesync_read_waiters",
			Help: "Piece reads waiting on the engine.",
		}),
		readRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "piecesync_read_requests_total",
			Help: "Piece read requests issued to the engine.",
		}),
		readsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "piecesync_reads_deduped_total",
			Help: "Piece reads that joined a request already in flight.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.alertsDispatched,
		m.pieceWaiters,
		m.readWaiters,
		m.readRequests,
		m.readsDeduped,
	}
}

func (m *metrics) register(r prometheus.Registerer) error {
	var errs []error
	for _, c := range m.collectors() {
		errs = append(errs, r.Register(c))
	}
	return errors.Join(errs...)
}

func (m *metrics) unregister(r prometheus.Registerer) {
	for _, c := range m.collectors() {
		r.Unregister(c)
	}
}
