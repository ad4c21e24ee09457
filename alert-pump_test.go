package piecesync

import (
	"testing"
	"time"

	"github.com/anacrolix/log"
	qt "github.com/go-quicktest/qt"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	got chan Alert
}

func (h recordingHandler) OnPieceFinished(a PieceFinishedAlert)       { h.got <- a }
func (h recordingHandler) OnReadPiece(a ReadPieceAlert)               { h.got <- a }
func (h recordingHandler) OnReadPieceFailed(a ReadPieceFailedAlert)   { h.got <- a }
func (h recordingHandler) OnMetadataReceived(a MetadataReceivedAlert) { h.got <- a }
func (h recordingHandler) OnMetadataFailed(a MetadataFailedAlert)     { h.got <- a }
func (h recordingHandler) OnTorrentError(a TorrentErrorAlert)         { h.got <- a }

func TestAlertPumpDispatchesInOrder(t *testing.T) {
	var e fakeEngine
	h := recordingHandler{make(chan Alert, 10)}
	p := NewAlertPump(&e, h, time.Millisecond, log.Default)
	qt.Assert(t, qt.Equals(p.State(), PumpIdle))
	qt.Assert(t, qt.IsNil(p.Start()))
	qt.Assert(t, qt.IsNotNil(p.Start()))
	ta := TorrentAlert{testInfoHash(1)}
	sent := []Alert{
		MetadataReceivedAlert{TorrentAlert: ta},
		HashFailedAlert{TorrentAlert: ta, Piece: 1},
		PieceFinishedAlert{TorrentAlert: ta, Piece: 1},
		ReadPieceAlert{TorrentAlert: ta, Piece: 1},
		ReadPieceFailedAlert{TorrentAlert: ta, Piece: 2},
		MetadataFailedAlert{TorrentAlert: ta},
		TorrentErrorAlert{TorrentAlert: ta},
	}
	e.push(sent...)
	for _, want := range append(sent[:1:1], sent[2:]...) {
		select {
		case got := <-h.got:
			require.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("didn't receive %v", want)
		}
	}
	p.Stop()
	qt.Assert(t, qt.Equals(p.State(), PumpStopped))
	select {
	case <-p.Stopped():
	default:
		t.Fatal("stopped not signalled")
	}
	// Idempotent.
	p.Stop()
}

func TestAlertPumpStopUnstarted(t *testing.T) {
	p := NewAlertPump(&fakeEngine{}, recordingHandler{}, time.Millisecond, log.Logger{})
	p.Stop()
	qt.Assert(t, qt.Equals(p.State(), PumpStopped))
	qt.Assert(t, qt.IsNotNil(p.Start()))
}

func TestPumpStateString(t *testing.T) {
	qt.Check(t, qt.Equals(PumpStopping.String(), "stopping"))
	qt.Check(t, qt.Equals(PumpState(9).String(), "PumpState(9)"))
	qt.Check(t, qt.Equals(AlertReadPieceFailed.String(), "read piece failed"))
}
