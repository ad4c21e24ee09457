package memengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"

	"github.com/anacrolix/piecesync"
	typedRoaring "github.com/anacrolix/piecesync/internal/typed-roaring"
	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/storage"
	"github.com/anacrolix/piecesync/types/infohash"
)

type torrent struct {
	e        *Engine
	infoHash infohash.T
	// Serializes storage calls for the torrent's slot.
	storageMu sync.Mutex

	// The rest is guarded by the Engine mutex.
	info          *metainfo.Info
	slot          storage.Slot
	have          typedRoaring.Bitmap[int]
	failed        bool
	metadataTimer *time.Timer
}

var _ piecesync.Handle = (*torrent)(nil)

func (t *torrent) InfoHash() infohash.T {
	return t.infoHash
}

func (t *torrent) alert() piecesync.TorrentAlert {
	return piecesync.TorrentAlert{Torrent: t.infoHash}
}

func (t *torrent) fail(err error) {
	e := t.e
	e.mu.Lock()
	defer e.mu.Unlock()
	t.failed = true
	e.pushAlertLocked(piecesync.TorrentErrorAlert{TorrentAlert: t.alert(), Err: err})
}

func (t *torrent) download(ctx context.Context, data io.ReaderAt) {
	logger := t.e.logger
	info := t.info
	attempts := make(map[int]int)
	queue := t.e.pieceOrder(info.NumPieces())
	for len(queue) != 0 {
		piece := queue[0]
		queue = queue[1:]
		err := t.downloadPiece(ctx, data, info.Piece(piece))
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Levelf(log.Warning, "downloading piece %v of %v: %v", piece, t.infoHash, err)
			t.fail(err)
			return
		}
		ok, err := t.verifyPiece(info.Piece(piece))
		if err != nil {
			t.fail(err)
			return
		}
		if ok {
			continue
		}
		attempts[piece]++
		if attempts[piece] >= maxPieceAttempts {
			t.fail(fmt.Errorf("piece %v failed hash check %v times", piece, attempts[piece]))
			return
		}
		queue = append(queue, piece)
	}
	logger.Levelf(log.Debug, "finished downloading %v", t.infoHash)
}

func (t *torrent) downloadPiece(ctx context.Context, data io.ReaderAt, p metainfo.Piece) error {
	if l := t.e.config.DownloadRate; l != nil {
		data = rateLimitedReaderAt{ctx: ctx, l: l, r: data}
	}
	buf := make([]byte, t.e.config.BlockSize)
	for off := int64(0); off < p.Length(); {
		b := buf[:min(int64(len(buf)), p.Length()-off)]
		n, err := data.ReadAt(b, p.Offset()+off)
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("reading seeded data for piece %v: %w", p.Index(), err)
		}
		t.storageMu.Lock()
		_, err = t.e.store.Write(t.slot, p.Index(), off, b[:n])
		t.storageMu.Unlock()
		if err != nil {
			return err
		}
		off += int64(n)
	}
	return nil
}

// Hashes the piece in storage and marks it as had if it matches the piece map.
func (t *torrent) verifyPiece(p metainfo.Piece) (bool, error) {
	t.storageMu.Lock()
	hashes, err := t.e.store.HashFullPiece(t.slot, p.Index(), false)
	t.storageMu.Unlock()
	if err != nil {
		return false, err
	}
	e := t.e
	e.mu.Lock()
	defer e.mu.Unlock()
	if hashes.Piece != p.Hash().Unwrap() {
		e.pushAlertLocked(piecesync.HashFailedAlert{TorrentAlert: t.alert(), Piece: p.Index()})
		return false, nil
	}
	if t.have.CheckedAdd(p.Index()) {
		e.pushAlertLocked(piecesync.PieceFinishedAlert{TorrentAlert: t.alert(), Piece: p.Index()})
	}
	return true, nil
}

func (t *torrent) readPiece(piece int) piecesync.Alert {
	e := t.e
	e.mu.Lock()
	info := t.info
	have := piece >= 0 && t.have.Contains(piece)
	e.mu.Unlock()
	if !have {
		return piecesync.ReadPieceFailedAlert{
			TorrentAlert: t.alert(),
			Piece:        piece,
			Err:          fmt.Errorf("%w: piece %v not downloaded", storage.ErrNotFound, piece),
		}
	}
	buf := make([]byte, info.Piece(piece).Length())
	t.storageMu.Lock()
	n, err := e.store.Read(t.slot, piece, 0, buf)
	t.storageMu.Unlock()
	if err != nil {
		if storage.IsNotFound(err) {
			// The storage lost a verified piece. Stop claiming it.
			e.mu.Lock()
			if t.have.CheckedRemove(piece) {
				e.logger.Levelf(log.Warning, "piece %v of %v missing from storage: %v", piece, t.infoHash, err)
			}
			e.mu.Unlock()
		}
		return piecesync.ReadPieceFailedAlert{TorrentAlert: t.alert(), Piece: piece, Err: err}
	}
	return piecesync.ReadPieceAlert{
		TorrentAlert: t.alert(),
		Piece:        piece,
		Buffer:       buf[:n],
		Size:         n,
	}
}
