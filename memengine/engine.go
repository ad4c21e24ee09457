// Package memengine is a transfer engine that "downloads" content it was given with Seed. It writes
// pieces through a storage.Contract and verifies them the way a swarm engine would, which makes it
// useful for exercising a piecesync.Coordinator without a network.
package memengine

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/anacrolix/sync"

	"github.com/anacrolix/piecesync"
	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/storage"
	"github.com/anacrolix/piecesync/types/infohash"
)

// How many times a piece is downloaded before the torrent is failed.
const maxPieceAttempts = 3

type seed struct {
	info *metainfo.Info
	data io.ReaderAt
}

type Engine struct {
	config Config
	logger log.Logger
	store  storage.Contract

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	torrents map[infohash.T]*torrent
	seeds    map[infohash.T]seed
	alerts   []piecesync.Alert
	// Broadcast when alerts are queued.
	alertsQueued chansync.BroadcastCond
	closed       chansync.SetOnce
}

var _ piecesync.Engine = (*Engine)(nil)

func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	e := &Engine{
		config:   *cfg,
		logger:   cfg.Logger,
		store:    cfg.Storage,
		torrents: make(map[infohash.T]*torrent),
		seeds:    make(map[infohash.T]seed),
	}
	if e.logger.IsZero() {
		e.logger = log.Default.WithNames("memengine")
	}
	if e.store == nil {
		e.store = storage.NewTransient(storage.TransientOpts{Logger: e.logger})
	}
	if e.config.BlockSize <= 0 {
		e.config.BlockSize = storage.DefaultBlockSize
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// The storage pieces are written to.
func (e *Engine) Storage() storage.Contract {
	return e.store
}

// Makes content available to torrents with the info's infohash. If such a torrent was already
// added and is waiting for metadata, it starts downloading.
func (e *Engine) Seed(info *metainfo.Info, data io.ReaderAt) (infohash.T, error) {
	if err := info.Validate(); err != nil {
		return infohash.T{}, fmt.Errorf("%w: %w", piecesync.ErrInvalidArgument, err)
	}
	ih := info.InfoHash()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.IsSet() {
		return ih, piecesync.ErrClosed
	}
	s := seed{info: info, data: data}
	e.seeds[ih] = s
	if t, ok := e.torrents[ih]; ok && t.info == nil && !t.failed {
		e.startLocked(t, s)
	}
	return ih, nil
}

func (e *Engine) AddTorrent(descriptor string) (piecesync.Handle, error) {
	m, err := metainfo.ParseInfoHashOrMagnet(descriptor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", piecesync.ErrParse, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.IsSet() {
		return nil, piecesync.ErrClosed
	}
	if t, ok := e.torrents[m.InfoHash]; ok {
		return t, nil
	}
	if e.config.MaxTorrents > 0 && len(e.torrents) >= e.config.MaxTorrents {
		return nil, fmt.Errorf("%w: already have %v torrents", piecesync.ErrEngineBusy, len(e.torrents))
	}
	t := &torrent{e: e, infoHash: m.InfoHash}
	e.torrents[m.InfoHash] = t
	if s, ok := e.seeds[m.InfoHash]; ok {
		e.startLocked(t, s)
	} else if d := e.config.MetadataTimeout; d > 0 {
		t.metadataTimer = time.AfterFunc(d, func() { e.metadataTimedOut(t, d) })
	}
	e.logger.Levelf(log.Debug, "added torrent %v", m.InfoHash)
	return t, nil
}

func (e *Engine) metadataTimedOut(t *torrent, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.info != nil || t.failed {
		return
	}
	t.failed = true
	e.pushAlertLocked(piecesync.MetadataFailedAlert{
		TorrentAlert: piecesync.TorrentAlert{Torrent: t.infoHash},
		Err:          fmt.Errorf("%w: no metadata after %v", piecesync.ErrTimeout, d),
	})
}

func (e *Engine) startLocked(t *torrent, s seed) {
	if t.metadataTimer != nil {
		t.metadataTimer.Stop()
	}
	slot, err := e.store.NewTorrent(s.info, t.infoHash)
	if err != nil {
		t.failed = true
		e.pushAlertLocked(piecesync.MetadataFailedAlert{
			TorrentAlert: piecesync.TorrentAlert{Torrent: t.infoHash},
			Err:          err,
		})
		return
	}
	t.info = s.info
	t.slot = slot
	e.pushAlertLocked(piecesync.MetadataReceivedAlert{
		TorrentAlert: piecesync.TorrentAlert{Torrent: t.infoHash},
		Info:         s.info,
	})
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		t.download(e.ctx, s.data)
	}()
}

func (e *Engine) handleTorrent(h piecesync.Handle) *torrent {
	t, ok := h.(*torrent)
	panicif.False(ok)
	panicif.NotEq(t.e, e)
	return t
}

// Reads the piece from storage in the background. Pieces that haven't been verified fail to read.
// Every request gets a ReadPieceAlert or ReadPieceFailedAlert, even once the Engine is closed.
func (e *Engine) RequestPieceRead(h piecesync.Handle, piece int) {
	t := e.handleTorrent(h)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.IsSet() {
		e.queueAlertLocked(piecesync.ReadPieceFailedAlert{
			TorrentAlert: t.alert(),
			Piece:        piece,
			Err:          fmt.Errorf("%w: engine closed", piecesync.ErrClosed),
		})
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		a := t.readPiece(piece)
		e.mu.Lock()
		defer e.mu.Unlock()
		e.queueAlertLocked(a)
	}()
}

func (e *Engine) HavePiece(h piecesync.Handle, piece int) bool {
	t := e.handleTorrent(h)
	e.mu.Lock()
	defer e.mu.Unlock()
	return piece >= 0 && t.have.Contains(piece)
}

func (e *Engine) WaitForAlert(timeout time.Duration) bool {
	e.mu.Lock()
	if len(e.alerts) != 0 {
		e.mu.Unlock()
		return true
	}
	queued := e.alertsQueued.Signaled()
	e.mu.Unlock()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-queued:
	case <-timer.C:
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.alerts) != 0
}

func (e *Engine) PopAlerts() (ret []piecesync.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ret = e.alerts
	e.alerts = nil
	return
}

// Download progress is dropped once the Engine is closed.
func (e *Engine) pushAlertLocked(a piecesync.Alert) {
	if e.closed.IsSet() {
		return
	}
	e.queueAlertLocked(a)
}

// Queues regardless of Close, for answers to requests.
func (e *Engine) queueAlertLocked(a piecesync.Alert) {
	e.alerts = append(e.alerts, a)
	e.alertsQueued.Broadcast()
}

// Stops downloads and waits for outstanding work. Alerts about download progress are dropped after
// this, but piece read requests are still answered.
func (e *Engine) Close() error {
	e.mu.Lock()
	if !e.closed.Set() {
		e.mu.Unlock()
		return nil
	}
	for _, t := range e.torrents {
		if t.metadataTimer != nil {
			t.metadataTimer.Stop()
		}
	}
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
	return nil
}

func (e *Engine) pieceOrder(n int) []int {
	if e.config.Shuffle {
		return rand.Perm(n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
