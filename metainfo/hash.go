package metainfo

import (
	"github.com/anacrolix/piecesync/types/infohash"
)

const HashSize = infohash.Size

type Hash = infohash.T

var (
	NewHashFromHex = infohash.FromHexString
	HashBytes      = infohash.HashBytes
)

// Identifies a piece across torrents.
type PieceKey struct {
	InfoHash Hash
	Index    PieceIndex
}
