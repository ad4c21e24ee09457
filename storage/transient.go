package storage

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"

	typedRoaring "github.com/anacrolix/piecesync/internal/typed-roaring"
	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/types/infohash"
)

type TransientOpts struct {
	// Defaults to DefaultBlockSize.
	BlockSize int64
	Logger    log.Logger
}

// Transient keeps piece data only in memory. Nothing is evicted: a piece's buffer lives until its
// torrent is removed or the storage is dropped.
type Transient struct {
	blockSize int64
	logger    log.Logger

	// Guards the slot table. Per-torrent data is serialized by the engine.
	mu    sync.RWMutex
	slots slotTable[*transientTorrent]

	residentPieces atomic.Int64
	residentBytes  atomic.Int64
	piecesWritten  atomic.Int64
}

type transientTorrent struct {
	infoHash infohash.T
	info     metainfo.Info
	pieces   map[int]*pieceBuffer
	// Pieces that have a buffer.
	allocated typedRoaring.Bitmap[int]
}

var _ Contract = (*Transient)(nil)

func NewTransient(opts TransientOpts) *Transient {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.Logger.IsZero() {
		opts.Logger = log.Default
	}
	return &Transient{
		blockSize: opts.BlockSize,
		logger:    opts.Logger.WithNames("transient"),
	}
}

func (me *Transient) NewTorrent(info *metainfo.Info, ih infohash.T) (Slot, error) {
	if err := info.Validate(); err != nil {
		return -1, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	t := &transientTorrent{
		infoHash: ih,
		info:     *info,
		pieces:   make(map[int]*pieceBuffer),
	}
	me.mu.Lock()
	slot := me.slots.Insert(t)
	me.mu.Unlock()
	me.logger.Levelf(log.Debug, "opened torrent %v in slot %v (%v pieces)", ih, slot, info.NumPieces())
	return slot, nil
}

func (me *Transient) RemoveTorrent(slot Slot) error {
	me.mu.Lock()
	t, ok := me.slots.Remove(slot)
	me.mu.Unlock()
	if !ok {
		return fmt.Errorf("slot %v: %w", slot, ErrNotFound)
	}
	var bytes int64
	for _, pb := range t.pieces {
		bytes += pb.Len()
	}
	me.residentPieces.Add(-int64(len(t.pieces)))
	me.residentBytes.Add(-bytes)
	me.logger.Levelf(log.Debug, "removed torrent %v from slot %v, freed %v bytes", t.infoHash, slot, bytes)
	return nil
}

func (me *Transient) torrent(slot Slot) (*transientTorrent, error) {
	me.mu.RLock()
	t, ok := me.slots.Get(slot)
	me.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("slot %v: %w", slot, ErrNotFound)
	}
	return t, nil
}

func (me *Transient) pieceBuffer(slot Slot, piece int) (*pieceBuffer, error) {
	t, err := me.torrent(slot)
	if err != nil {
		return nil, err
	}
	pb, ok := t.pieces[piece]
	if !ok {
		return nil, fmt.Errorf("piece %v: %w", piece, ErrNotFound)
	}
	return pb, nil
}

func (me *Transient) Read(slot Slot, piece int, off int64, b []byte) (n int, err error) {
	if off < 0 {
		return 0, fmt.Errorf("read offset %v: %w", off, ErrInvalidArgument)
	}
	pb, err := me.pieceBuffer(slot, piece)
	if err != nil {
		return
	}
	n, err = pb.ReadAt(b, off)
	if err != nil {
		err = fmt.Errorf("piece %v offset %v beyond length %v: %w", piece, off, pb.Len(), ErrNotFound)
	}
	return
}

func (me *Transient) Write(slot Slot, piece int, off int64, b []byte) (int, error) {
	t, err := me.torrent(slot)
	if err != nil {
		return 0, err
	}
	pb, ok := t.pieces[piece]
	if !ok {
		// Panics if the piece isn't in the piece map.
		length := t.info.Piece(piece).Length()
		pb = newPieceBuffer(length)
		t.pieces[piece] = pb
		t.allocated.Add(piece)
		me.residentPieces.Add(1)
		me.residentBytes.Add(length)
		me.piecesWritten.Add(1)
	}
	return pb.WriteAt(b, off), nil
}

func (me *Transient) HashFullPiece(slot Slot, piece int, blocks bool) (PieceHashes, error) {
	pb, err := me.pieceBuffer(slot, piece)
	if err != nil {
		return PieceHashes{}, err
	}
	return hashPieceBuffer(pb, me.blockSize, blocks), nil
}

func (me *Transient) HashPartialBlock(slot Slot, piece int, off int64) (ret BlockHash, err error) {
	pb, err := me.pieceBuffer(slot, piece)
	if err != nil {
		return
	}
	if off < 0 || off >= pb.Len() {
		err = fmt.Errorf("block offset %v in piece of length %v: %w", off, pb.Len(), ErrInvalidArgument)
		return
	}
	return hashBlock(pb.block(off, me.blockSize)), nil
}

// Whether a buffer exists for the piece. It says nothing about whether the data is complete.
func (me *Transient) HavePieceData(slot Slot, piece int) bool {
	t, err := me.torrent(slot)
	if err != nil {
		return false
	}
	return t.allocated.Contains(piece)
}

func (me *Transient) Move(slot Slot, savePath string) error {
	return fmt.Errorf("moving transient storage to %q: %w", savePath, ErrUnsupported)
}

func (me *Transient) Rename(Slot, int, string) error { return nil }

func (me *Transient) Delete(Slot) error { return nil }

func (me *Transient) ReleaseFiles(Slot) error { return nil }

func (me *Transient) CheckFiles(Slot) (CheckResult, error) { return CheckNoPieces, nil }

func (me *Transient) SetPriority(Slot, []int) error { return nil }

func (me *Transient) ClearPiece(Slot, int) error { return nil }

func (me *Transient) Status(Slot) []FileStatus { return nil }

type StoreStats struct {
	Torrents       int
	ResidentPieces int64
	ResidentBytes  int64
	// Pieces allocated over the lifetime of the storage.
	PiecesWritten int64
}

func (me *Transient) Stats() StoreStats {
	me.mu.RLock()
	torrents := me.slots.Len()
	me.mu.RUnlock()
	return StoreStats{
		Torrents:       torrents,
		ResidentPieces: me.residentPieces.Load(),
		ResidentBytes:  me.residentBytes.Load(),
		PiecesWritten:  me.piecesWritten.Load(),
	}
}

// Reports whether err means the data isn't in the storage, as opposed to a bad request.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
