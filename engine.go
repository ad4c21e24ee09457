package piecesync

import (
	"time"

	"github.com/anacrolix/piecesync/types/infohash"
)

// A torrent as the engine knows it.
type Handle interface {
	InfoHash() infohash.T
}

// The transfer engine that downloads pieces. All methods must be safe for concurrent use. Every
// outcome of an asynchronous request eventually surfaces as an Alert.
type Engine interface {
	// Takes a magnet link or some other engine-specific descriptor. Failures should match ErrParse
	// or ErrEngineBusy where they apply.
	AddTorrent(descriptor string) (Handle, error)
	// Asks for the piece's bytes. The result arrives as a ReadPieceAlert or ReadPieceFailedAlert.
	RequestPieceRead(h Handle, piece int)
	// Whether the piece is downloaded and verified. Must not block.
	HavePiece(h Handle, piece int) bool
	// Blocks until alerts are queued or the timeout elapses, and reports whether any are queued.
	WaitForAlert(timeout time.Duration) bool
	// Removes and returns all queued alerts, oldest first.
	PopAlerts() []Alert
}
