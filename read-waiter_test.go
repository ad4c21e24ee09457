package piecesync

import (
	"bytes"
	"testing"

	qt "github.com/go-quicktest/qt"
)

func TestReadWaiterCopiesRequestedPart(t *testing.T) {
	var r readWaitRegistry
	key := pieceKey{InfoHash: testInfoHash(1), Index: 5}
	full := bytes.Repeat([]byte("0123456789"), 12)
	buf := make([]byte, 50)
	rw := newReadWaiter(key, buf, 100, 50)
	first, err := r.add(rw)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(first))
	qt.Assert(t, qt.Equals(r.onReadCompleted(key, full, 120), 1))
	n, err := rw.result()
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(n, 20))
	qt.Assert(t, qt.DeepEquals(buf[:20], full[100:120]))
	qt.Assert(t, qt.Equals(r.len(), 0))
}

func TestReadWaiterCopyLimits(t *testing.T) {
	full := make([]byte, 1000)
	for i := range full {
		full[i] = byte(i)
	}
	for _, tc := range []struct {
		name          string
		dst           int
		start, length int
		size          int
		want          int
	}{
		{"whole piece", 1000, 0, 1000, 1000, 1000},
		{"limited by length", 1000, 10, 5, 1000, 5},
		{"limited by destination", 3, 10, 50, 1000, 3},
		{"limited by piece", 1000, 900, 500, 1000, 100},
		{"start at end", 10, 1000, 10, 1000, 0},
		{"zero length", 10, 0, 0, 1000, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rw := newReadWaiter(pieceKey{}, make([]byte, tc.dst), tc.start, tc.length)
			rw.complete(full, tc.size)
			n, err := rw.result()
			qt.Assert(t, qt.IsNil(err))
			qt.Assert(t, qt.Equals(n, tc.want))
			qt.Check(t, qt.DeepEquals(rw.dst[:n], full[tc.start:tc.start+n]))
		})
	}
}

func TestReadWaiterStartPastPiece(t *testing.T) {
	rw := newReadWaiter(pieceKey{}, make([]byte, 10), 200, 10)
	rw.complete(make([]byte, 120), 120)
	n, err := rw.result()
	qt.Assert(t, qt.ErrorIs(err, ErrNoData))
	qt.Assert(t, qt.Equals(n, -1))
}

func TestReadWaitersShareDelivery(t *testing.T) {
	var r readWaitRegistry
	key := pieceKey{InfoHash: testInfoHash(1), Index: 2}
	other := pieceKey{InfoHash: testInfoHash(2), Index: 2}
	a := newReadWaiter(key, make([]byte, 4), 0, 4)
	b := newReadWaiter(key, make([]byte, 4), 2, 4)
	c := newReadWaiter(other, make([]byte, 4), 0, 4)
	for i, rw := range []*readWaiter{a, b, c} {
		first, err := r.add(rw)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(first, i != 1))
	}
	qt.Assert(t, qt.Equals(r.pending(key), 2))
	qt.Assert(t, qt.Equals(r.onReadCompleted(key, []byte("abcdef"), 6), 2))
	qt.Assert(t, qt.DeepEquals(a.dst, []byte("abcd")))
	qt.Assert(t, qt.DeepEquals(b.dst, []byte("cdef")))
	// The other torrent's read of the same piece index is untouched.
	qt.Assert(t, qt.IsFalse(c.done.IsSet()))
	qt.Assert(t, qt.Equals(r.len(), 1))
	qt.Assert(t, qt.Equals(r.countForTorrent(testInfoHash(2)), 1))
}

func TestReadWaiterFailed(t *testing.T) {
	var r readWaitRegistry
	key := pieceKey{InfoHash: testInfoHash(1), Index: 0}
	rw := newReadWaiter(key, make([]byte, 4), 0, 4)
	_, err := r.add(rw)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(r.onReadFailed(key, ErrReadFailed), 1))
	n, err := rw.result()
	qt.Assert(t, qt.Equals(n, -1))
	qt.Assert(t, qt.ErrorIs(err, ErrReadFailed))
	qt.Assert(t, qt.Equals(r.onReadFailed(key, ErrReadFailed), 0))
}

func TestReadWaiterRemove(t *testing.T) {
	var r readWaitRegistry
	key := pieceKey{InfoHash: testInfoHash(1), Index: 0}
	a := newReadWaiter(key, make([]byte, 4), 0, 4)
	b := newReadWaiter(key, make([]byte, 4), 0, 4)
	r.add(a)
	r.add(b)
	qt.Assert(t, qt.IsTrue(r.remove(a)))
	qt.Assert(t, qt.IsFalse(r.remove(a)))
	qt.Assert(t, qt.Equals(r.pending(key), 1))
	qt.Assert(t, qt.Equals(r.onReadCompleted(key, []byte("wxyz"), 4), 1))
	qt.Assert(t, qt.IsFalse(a.done.IsSet()))
	qt.Assert(t, qt.IsFalse(r.remove(b)))
}

func TestReadWaiterCancelAll(t *testing.T) {
	var r readWaitRegistry
	rw := newReadWaiter(pieceKey{}, nil, 0, 0)
	r.add(rw)
	r.cancelAll()
	_, err := rw.result()
	qt.Assert(t, qt.ErrorIs(err, ErrClosed))
	_, err = r.add(newReadWaiter(pieceKey{}, nil, 0, 0))
	qt.Assert(t, qt.ErrorIs(err, ErrClosed))
	qt.Assert(t, qt.Equals(r.len(), 0))
}
