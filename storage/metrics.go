package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	torrentsDesc = prometheus.NewDesc(
		"piecesync_transient_torrents", "Torrents with a slot in transient storage.", nil, nil)
	residentPiecesDesc = prometheus.NewDesc(
		"piecesync_transient_resident_pieces", "Piece buffers held in memory.", nil, nil)
	residentBytesDesc = prometheus.NewDesc(
		"piecesync_transient_resident_bytes", "Bytes of piece buffers held in memory.", nil, nil)
	piecesWrittenDesc = prometheus.NewDesc(
		"piecesync_transient_pieces_allocated_total", "Piece buffers allocated.", nil, nil)
)

var _ prometheus.Collector = (*Transient)(nil)

func (me *Transient) Describe(ch chan<- *prometheus.Desc) {
	ch <- torrentsDesc
	ch <- residentPiecesDesc
	ch <- residentBytesDesc
	ch <- piecesWrittenDesc
}

func (me *Transient) Collect(ch chan<- prometheus.Metric) {
	stats := me.Stats()
	ch <- prometheus.MustNewConstMetric(torrentsDesc, prometheus.GaugeValue, float64(stats.Torrents))
	ch <- prometheus.MustNewConstMetric(residentPiecesDesc, prometheus.GaugeValue, float64(stats.ResidentPieces))
	ch <- prometheus.MustNewConstMetric(residentBytesDesc, prometheus.GaugeValue, float64(stats.ResidentBytes))
	ch <- prometheus.MustNewConstMetric(piecesWrittenDesc, prometheus.CounterValue, float64(stats.PiecesWritten))
}
