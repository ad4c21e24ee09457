package storage

import (
	"github.com/anacrolix/piecesync/internal/errorsx"
)

const (
	// The torrent slot or piece has no data in this storage.
	ErrNotFound = errorsx.String("not found")
	// A caller supplied an index, offset or piece map that can't be valid.
	ErrInvalidArgument = errorsx.String("invalid argument")
	// The storage can't perform the operation at all, such as moving transient data to a path.
	ErrUnsupported = errorsx.String("operation not supported")
)
