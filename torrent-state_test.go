package piecesync

import (
	"context"
	"errors"
	"testing"
	"time"

	qt "github.com/go-quicktest/qt"

	"github.com/anacrolix/piecesync/metainfo"
)

func TestTorrentStateReceived(t *testing.T) {
	var r torrentRegistry
	ts := r.getOrCreate(testInfoHash(1))
	qt.Assert(t, qt.Equals(r.getOrCreate(testInfoHash(1)), ts))
	qt.Assert(t, qt.IsTrue(ts.metadataPending()))
	info := &metainfo.Info{Name: "a", PieceLength: 1, Length: 1}
	go ts.setMetadataReceived(info)
	qt.Assert(t, qt.IsNil(ts.waitForMetadata(context.Background())))
	qt.Assert(t, qt.Equals(ts.metadataInfo(), info))
	// Terminal.
	qt.Assert(t, qt.IsFalse(ts.setMetadataFailed(errors.New("nope"))))
	qt.Assert(t, qt.IsFalse(ts.setMetadataReceived(nil)))
	qt.Assert(t, qt.IsNil(ts.waitForMetadata(context.Background())))
}

func TestTorrentStateFailed(t *testing.T) {
	var r torrentRegistry
	ts := r.getOrCreate(testInfoHash(1))
	cause := errors.New("tracker said no")
	qt.Assert(t, qt.IsTrue(ts.setMetadataFailed(cause)))
	err := ts.waitForMetadata(context.Background())
	qt.Assert(t, qt.ErrorIs(err, ErrMetadataFailed))
	qt.Assert(t, qt.ErrorIs(err, cause))
	qt.Assert(t, qt.IsFalse(ts.setMetadataReceived(nil)))
	qt.Assert(t, qt.IsFalse(ts.metadataPending()))
}

func TestTorrentStateCancel(t *testing.T) {
	var r torrentRegistry
	ts := r.getOrCreate(testInfoHash(1))
	go func() {
		time.Sleep(time.Millisecond)
		r.cancelAll()
	}()
	qt.Assert(t, qt.ErrorIs(ts.waitForMetadata(context.Background()), ErrClosed))
	// Cancellation doesn't resolve the metadata.
	qt.Assert(t, qt.IsTrue(ts.metadataPending()))
	// States created after the registry is cancelled don't block.
	qt.Assert(t, qt.ErrorIs(r.getOrCreate(testInfoHash(2)).waitForMetadata(context.Background()), ErrClosed))
}

func TestTorrentStateContext(t *testing.T) {
	var r torrentRegistry
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	qt.Assert(t, qt.ErrorIs(r.getOrCreate(testInfoHash(1)).waitForMetadata(ctx), context.DeadlineExceeded))
}
