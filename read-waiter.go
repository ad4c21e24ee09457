package piecesync

import (
	"github.com/anacrolix/chansync"
	"github.com/anacrolix/sync"
	list "github.com/bahlo/generic-list-go"

	"github.com/anacrolix/piecesync/types/infohash"
)

// One blocked ReadPiece call. Never reused.
type readWaiter struct {
	key    pieceKey
	dst    []byte
	start  int
	length int

	// Set before done, and not modified after.
	copied int
	err    error
	done   chansync.SetOnce

	// Guarded by the registry mutex. Nil once the waiter has left the registry.
	elem *list.Element[*readWaiter]
}

func newReadWaiter(key pieceKey, dst []byte, start, length int) *readWaiter {
	return &readWaiter{
		key:    key,
		dst:    dst,
		start:  start,
		length: length,
		copied: -1,
	}
}

// Copies the requested part of a delivered piece. A piece that ends before the requested start
// leaves the waiter with no data.
func (me *readWaiter) complete(buf []byte, size int) {
	avail := size - me.start
	if avail < 0 {
		me.err = ErrNoData
		me.done.Set()
		return
	}
	n := min(avail, len(me.dst), me.length)
	me.copied = copy(me.dst[:n], buf[me.start:me.start+n])
	me.done.Set()
}

func (me *readWaiter) fail(err error) {
	me.err = err
	me.done.Set()
}

// Only valid once done is set.
func (me *readWaiter) result() (int, error) {
	if me.err != nil {
		return -1, me.err
	}
	return me.copied, nil
}

// Pending reads per piece, in arrival order.
type readWaitRegistry struct {
	mu      sync.Mutex
	waiters map[pieceKey]*list.List[*readWaiter]
	count   int
	closed  bool
	onLen   func(int)
}

// Registers the waiter. first is true when no other read for the piece was pending, which means
// nothing has asked the engine for it yet.
func (me *readWaitRegistry) add(rw *readWaiter) (first bool, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.closed {
		return false, ErrClosed
	}
	l, ok := me.waiters[rw.key]
	if !ok {
		l = list.New[*readWaiter]()
		if me.waiters == nil {
			me.waiters = make(map[pieceKey]*list.List[*readWaiter])
		}
		me.waiters[rw.key] = l
	}
	first = l.Len() == 0
	rw.elem = l.PushBack(rw)
	me.count++
	me.lenChanged()
	return
}

// Removes a waiter whose caller gave up. Returns false if it was already completed.
func (me *readWaitRegistry) remove(rw *readWaiter) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	if rw.elem == nil {
		return false
	}
	me.unlink(rw)
	return true
}

func (me *readWaitRegistry) unlink(rw *readWaiter) {
	l := me.waiters[rw.key]
	l.Remove(rw.elem)
	rw.elem = nil
	if l.Len() == 0 {
		delete(me.waiters, rw.key)
	}
	me.count--
	me.lenChanged()
}

// Takes every waiter pending on the piece out of the registry.
func (me *readWaitRegistry) take(key pieceKey) (ret []*readWaiter) {
	me.mu.Lock()
	defer me.mu.Unlock()
	l, ok := me.waiters[key]
	if !ok {
		return nil
	}
	for e := l.Front(); e != nil; e = e.Next() {
		ret = append(ret, e.Value)
		e.Value.elem = nil
	}
	delete(me.waiters, key)
	me.count -= len(ret)
	me.lenChanged()
	return
}

// Satisfies every read pending on the piece from the one delivered buffer. Returns how many
// waiters were completed.
func (me *readWaitRegistry) onReadCompleted(key pieceKey, buf []byte, size int) int {
	// Don't trust size past what was actually delivered.
	size = min(size, len(buf))
	rws := me.take(key)
	for _, rw := range rws {
		rw.complete(buf, size)
	}
	return len(rws)
}

func (me *readWaitRegistry) onReadFailed(key pieceKey, err error) int {
	rws := me.take(key)
	for _, rw := range rws {
		rw.fail(err)
	}
	return len(rws)
}

func (me *readWaitRegistry) cancelAll() {
	me.mu.Lock()
	me.closed = true
	var all []*readWaiter
	for key, l := range me.waiters {
		for e := l.Front(); e != nil; e = e.Next() {
			e.Value.elem = nil
			all = append(all, e.Value)
		}
		delete(me.waiters, key)
	}
	me.count = 0
	me.lenChanged()
	me.mu.Unlock()
	for _, rw := range all {
		rw.fail(ErrClosed)
	}
}

func (me *readWaitRegistry) pending(key pieceKey) int {
	me.mu.Lock()
	defer me.mu.Unlock()
	if l, ok := me.waiters[key]; ok {
		return l.Len()
	}
	return 0
}

func (me *readWaitRegistry) countForTorrent(ih infohash.T) (n int) {
	me.mu.Lock()
	defer me.mu.Unlock()
	for key, l := range me.waiters {
		if key.InfoHash == ih {
			n += l.Len()
		}
	}
	return
}

func (me *readWaitRegistry) len() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.count
}

func (me *readWaitRegistry) lenChanged() {
	if me.onLen != nil {
		me.onLen(me.count)
	}
}
