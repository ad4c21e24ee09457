package piecesync

import (
	"fmt"

	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/types/infohash"
)

type AlertKind int

const (
	// Anything the coordinator doesn't act on.
	AlertOther AlertKind = iota
	AlertPieceFinished
	AlertReadPiece
	AlertReadPieceFailed
	AlertMetadataReceived
	AlertMetadataFailed
	AlertTorrentError
)

func (k AlertKind) String() string {
	switch k {
	case AlertPieceFinished:
		return "piece finished"
	case AlertReadPiece:
		return "read piece"
	case AlertReadPieceFailed:
		return "read piece failed"
	case AlertMetadataReceived:
		return "metadata received"
	case AlertMetadataFailed:
		return "metadata failed"
	case AlertTorrentError:
		return "torrent error"
	default:
		return "other"
	}
}

// An event from the engine's queue.
type Alert interface {
	Kind() AlertKind
	// The torrent the alert concerns. Zero for session-wide alerts.
	InfoHash() infohash.T
}

// Embedded by alerts that concern a single torrent.
type TorrentAlert struct {
	Torrent infohash.T
}

func (a TorrentAlert) InfoHash() infohash.T {
	return a.Torrent
}

// The piece passed its hash check and HavePiece now reports true for it.
type PieceFinishedAlert struct {
	TorrentAlert
	Piece int
}

func (PieceFinishedAlert) Kind() AlertKind { return AlertPieceFinished }

func (a PieceFinishedAlert) String() string {
	return fmt.Sprintf("piece %v of %v finished", a.Piece, a.Torrent.Short())
}

// Delivers a whole piece. Buffer[:Size] is the piece's data and must not be modified by receivers.
type ReadPieceAlert struct {
	TorrentAlert
	Piece  int
	Buffer []byte
	Size   int
}

func (ReadPieceAlert) Kind() AlertKind { return AlertReadPiece }

func (a ReadPieceAlert) String() string {
	return fmt.Sprintf("read piece %v of %v (%v bytes)", a.Piece, a.Torrent.Short(), a.Size)
}

type ReadPieceFailedAlert struct {
	TorrentAlert
	Piece int
	Err   error
}

func (ReadPieceFailedAlert) Kind() AlertKind { return AlertReadPieceFailed }

func (a ReadPieceFailedAlert) String() string {
	return fmt.Sprintf("read of piece %v of %v failed: %v", a.Piece, a.Torrent.Short(), a.Err)
}

type MetadataReceivedAlert struct {
	TorrentAlert
	// May be nil if the engine doesn't expose it.
	Info *metainfo.Info
}

func (MetadataReceivedAlert) Kind() AlertKind { return AlertMetadataReceived }

func (a MetadataReceivedAlert) String() string {
	return fmt.Sprintf("metadata received for %v", a.Torrent.Short())
}

type MetadataFailedAlert struct {
	TorrentAlert
	Err error
}

func (MetadataFailedAlert) Kind() AlertKind { return AlertMetadataFailed }

func (a MetadataFailedAlert) String() string {
	return fmt.Sprintf("metadata failed for %v: %v", a.Torrent.Short(), a.Err)
}

type TorrentErrorAlert struct {
	TorrentAlert
	Err error
}

func (TorrentErrorAlert) Kind() AlertKind { return AlertTorrentError }

func (a TorrentErrorAlert) String() string {
	return fmt.Sprintf("torrent %v error: %v", a.Torrent.Short(), a.Err)
}

// A downloaded piece failed verification and will be downloaded again.
type HashFailedAlert struct {
	TorrentAlert
	Piece int
}

func (HashFailedAlert) Kind() AlertKind { return AlertOther }

func (a HashFailedAlert) String() string {
	return fmt.Sprintf("piece %v of %v failed hash check", a.Piece, a.Torrent.Short())
}
