package piecesync

import (
	"time"

	"github.com/anacrolix/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Probably not safe to modify after it's given to a Coordinator.
type Config struct {
	Logger log.Logger
	// How long the AlertPump blocks on the engine per iteration. Bounds how quickly Close returns,
	// and has nothing to do with engine liveness.
	AlertWaitTimeout time.Duration
	// How long WaitForPiece blocks between HavePiece checks.
	PiecePollInterval time.Duration
	// Don't ask the engine to read a piece that already has a read in flight. The pending waiters
	// are all satisfied by the one delivery.
	DedupReadRequests bool
	// Coordinator metrics are registered here if it's not nil.
	MetricsRegisterer prometheus.Registerer
	Tracer            trace.Tracer
}

func NewDefaultConfig() *Config {
	return &Config{
		Logger:            log.Default.WithNames("piecesync"),
		AlertWaitTimeout:  500 * time.Millisecond,
		PiecePollInterval: time.Second,
		DedupReadRequests: true,
		Tracer:            otel.Tracer(tracerName),
	}
}

const tracerName = "anacrolix.piecesync"
