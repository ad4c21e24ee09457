package storage

import (
	"crypto/sha256"

	g "github.com/anacrolix/generics"

	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/types/infohash"
)

// Identifies a torrent's data within a storage. Slots are reused after RemoveTorrent.
type Slot int

// Size of the sub-piece blocks that get individual hashes. Matches the BEP 52 merkle leaf size.
const DefaultBlockSize = 16 << 10

type BlockHash = [sha256.Size]byte

type PieceHashes struct {
	// SHA-1 over the whole piece, as carried in the info dictionary.
	Piece metainfo.Hash
	// Set only if block hashes were requested. The last block may be shorter than the block size.
	Blocks g.Option[[]BlockHash]
}

type CheckResult int

const (
	// There's no existing data to resume from.
	CheckNoPieces CheckResult = iota
	// Existing data was found and the engine should verify it.
	CheckHavePieces
)

type FileStatus struct {
	FileIndex int
	Open      bool
	Writable  bool
}

// The storage operations a transfer engine performs on behalf of a torrent. The engine serializes
// calls for a given Slot, so implementations needn't guard a torrent's data against itself.
type Contract interface {
	NewTorrent(info *metainfo.Info, ih infohash.T) (Slot, error)
	RemoveTorrent(Slot) error
	// Reads up to len(b) bytes of the piece starting at off. A short read is not an error.
	Read(slot Slot, piece int, off int64, b []byte) (int, error)
	// Writes b into the piece at off. Writing outside the piece is a programming error.
	Write(slot Slot, piece int, off int64, b []byte) (int, error)
	HashFullPiece(slot Slot, piece int, blocks bool) (PieceHashes, error)
	HashPartialBlock(slot Slot, piece int, off int64) (BlockHash, error)

	Move(slot Slot, savePath string) error
	Rename(slot Slot, fileIndex int, newName string) error
	Delete(slot Slot) error
	ReleaseFiles(slot Slot) error
	CheckFiles(slot Slot) (CheckResult, error)
	SetPriority(slot Slot, priorities []int) error
	ClearPiece(slot Slot, piece int) error
	Status(slot Slot) []FileStatus
}
