package piecesync

import (
	"context"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/sync"

	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/types/infohash"
)

type pieceKey = metainfo.PieceKey

// Lets any number of callers wait for one piece to finish.
type pieceWaiter struct {
	key       pieceKey
	finished  chansync.SetOnce
	cancelled chansync.SetOnce
}

// Reports whether the piece finished. Timing out or being cancelled returns false.
func (me *pieceWaiter) wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-me.finished.Done():
	case <-me.cancelled.Done():
	case <-timer.C:
	case <-ctx.Done():
	}
	return me.finished.IsSet()
}

// At most one pieceWaiter exists per key. Entries leave the registry only when the piece finishes,
// never on timeout, because the engine can still finish the piece after a caller gives up.
type pieceWaitRegistry struct {
	mu      sync.Mutex
	waiters map[pieceKey]*pieceWaiter
	closed  bool
	onLen   func(int)
}

func (me *pieceWaitRegistry) getOrCreate(key pieceKey) *pieceWaiter {
	me.mu.Lock()
	defer me.mu.Unlock()
	if pw, ok := me.waiters[key]; ok {
		return pw
	}
	pw := &pieceWaiter{key: key}
	if me.closed {
		pw.cancelled.Set()
		return pw
	}
	if me.waiters == nil {
		me.waiters = make(map[pieceKey]*pieceWaiter)
	}
	me.waiters[key] = pw
	me.lenChanged()
	return pw
}

// Wakes everyone waiting on the piece and forgets the waiter. Later waits create a new one, which is
// fine since callers check HavePiece before waiting. Returns whether there was a waiter.
func (me *pieceWaitRegistry) signalPieceFinished(key pieceKey) bool {
	me.mu.Lock()
	pw, ok := me.waiters[key]
	if ok {
		delete(me.waiters, key)
		me.lenChanged()
	}
	me.mu.Unlock()
	if ok {
		pw.finished.Set()
	}
	return ok
}

func (me *pieceWaitRegistry) cancelAll() {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.closed = true
	for _, pw := range me.waiters {
		pw.cancelled.Set()
	}
	clear(me.waiters)
	me.lenChanged()
}

func (me *pieceWaitRegistry) countForTorrent(ih infohash.T) (n int) {
	me.mu.Lock()
	defer me.mu.Unlock()
	for key := range me.waiters {
		if key.InfoHash == ih {
			n++
		}
	}
	return
}

func (me *pieceWaitRegistry) len() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return len(me.waiters)
}

func (me *pieceWaitRegistry) lenChanged() {
	if me.onLen != nil {
		me.onLen(len(me.waiters))
	}
}
