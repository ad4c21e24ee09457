package piecesync

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
)

// Receives the alerts the AlertPump recognizes. Methods are only ever called from the pump's
// goroutine, one at a time, in the order the engine queued the alerts.
type AlertHandler interface {
	OnPieceFinished(PieceFinishedAlert)
	OnReadPiece(ReadPieceAlert)
	OnReadPieceFailed(ReadPieceFailedAlert)
	OnMetadataReceived(MetadataReceivedAlert)
	OnMetadataFailed(MetadataFailedAlert)
	OnTorrentError(TorrentErrorAlert)
}

type PumpState int32

const (
	PumpIdle PumpState = iota
	PumpRunning
	PumpStopping
	PumpStopped
)

func (s PumpState) String() string {
	switch s {
	case PumpIdle:
		return "idle"
	case PumpRunning:
		return "running"
	case PumpStopping:
		return "stopping"
	case PumpStopped:
		return "stopped"
	default:
		return fmt.Sprintf("PumpState(%d)", int32(s))
	}
}

// The only reader of the engine's alert queue.
type AlertPump struct {
	engine      Engine
	handler     AlertHandler
	waitTimeout time.Duration
	logger      log.Logger
	// Called for every alert popped, before dispatch.
	onAlert func(Alert)

	state   atomic.Int32
	stopped chansync.SetOnce
}

func NewAlertPump(engine Engine, handler AlertHandler, waitTimeout time.Duration, logger log.Logger) *AlertPump {
	if logger.IsZero() {
		logger = log.Default
	}
	return &AlertPump{
		engine:      engine,
		handler:     handler,
		waitTimeout: waitTimeout,
		logger:      logger.WithNames("pump"),
	}
}

func (p *AlertPump) State() PumpState {
	return PumpState(p.state.Load())
}

// Starts the pump goroutine. A pump can only be started once.
func (p *AlertPump) Start() error {
	if !p.state.CompareAndSwap(int32(PumpIdle), int32(PumpRunning)) {
		return fmt.Errorf("can't start alert pump in state %v", p.State())
	}
	go p.run()
	return nil
}

// Stops the pump after its current drain pass, and waits for it to exit. It's safe to call more
// than once, and on a pump that was never started.
func (p *AlertPump) Stop() {
	if p.state.CompareAndSwap(int32(PumpIdle), int32(PumpStopped)) {
		p.stopped.Set()
		return
	}
	p.state.CompareAndSwap(int32(PumpRunning), int32(PumpStopping))
	<-p.stopped.Done()
}

// Closed when the pump has exited.
func (p *AlertPump) Stopped() <-chan struct{} {
	return p.stopped.Done()
}

func (p *AlertPump) run() {
	defer p.stopped.Set()
	defer p.state.Store(int32(PumpStopped))
	p.logger.Levelf(log.Debug, "started")
	for p.State() == PumpRunning {
		if !p.engine.WaitForAlert(p.waitTimeout) {
			continue
		}
		for _, a := range p.engine.PopAlerts() {
			p.dispatch(a)
		}
	}
	p.logger.Levelf(log.Debug, "stopped")
}

// Passes the alert to exactly one handler method, or ignores it.
func (p *AlertPump) dispatch(a Alert) {
	if p.onAlert != nil {
		p.onAlert(a)
	}
	p.logger.Levelf(log.Debug, "dispatching %v alert: %v", a.Kind(), a)
	switch a := a.(type) {
	case PieceFinishedAlert:
		p.handler.OnPieceFinished(a)
	case ReadPieceAlert:
		p.handler.OnReadPiece(a)
	case ReadPieceFailedAlert:
		p.handler.OnReadPieceFailed(a)
	case MetadataReceivedAlert:
		p.handler.OnMetadataReceived(a)
	case MetadataFailedAlert:
		p.handler.OnMetadataFailed(a)
	case TorrentErrorAlert:
		p.handler.OnTorrentError(a)
	}
}
