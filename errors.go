package piecesync

import (
	"fmt"

	"github.com/anacrolix/piecesync/internal/errorsx"
	"github.com/anacrolix/piecesync/storage"
)

const (
	// Engines return this when an add-torrent descriptor can't be understood.
	ErrParse = errorsx.String("can't parse torrent descriptor")
	// Engines return this when they won't take on more work.
	ErrEngineBusy = errorsx.String("engine busy")
	// Matches any *EngineError.
	ErrEngineFailure = errorsx.String("engine failure")
	ErrTimeout       = errorsx.String("timed out")
	ErrClosed        = errorsx.String("closed")
	// The engine gave up on the torrent's metadata.
	ErrMetadataFailed = errorsx.String("metadata failed")
	// The engine failed to read a piece from its storage.
	ErrReadFailed = errorsx.String("piece read failed")
	// The delivered piece ended before the requested read offset.
	ErrNoData = errorsx.String("no data at read offset")
)

var (
	ErrNotFound        = storage.ErrNotFound
	ErrInvalidArgument = storage.ErrInvalidArgument
	ErrUnsupported     = storage.ErrUnsupported
)

// Wraps a failure surfaced by the transfer engine.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Is(target error) bool {
	return target == ErrEngineFailure
}
