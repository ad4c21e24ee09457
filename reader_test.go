package piecesync_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"testing"
	"time"

	_ "github.com/anacrolix/envpprof"
	qt "github.com/go-quicktest/qt"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/piecesync"
	"github.com/anacrolix/piecesync/internal/errorsx"
	"github.com/anacrolix/piecesync/memengine"
	"github.com/anacrolix/piecesync/metainfo"
)

type swarm struct {
	data   []byte
	info   *metainfo.Info
	engine *memengine.Engine
	c      *piecesync.Coordinator
}

func newSwarm(t *testing.T, length int, pieceLength int64, seeded bool) *swarm {
	data := make([]byte, length)
	rand.NewChaCha8([32]byte{2}).Read(data)
	info := &metainfo.Info{Name: "stream", PieceLength: pieceLength}
	qt.Assert(t, qt.IsNil(info.GeneratePieces(bytes.NewReader(data))))
	ecfg := memengine.NewDefaultConfig()
	ecfg.Shuffle = true
	e := memengine.New(ecfg)
	if seeded {
		_, err := e.Seed(info, bytes.NewReader(data))
		qt.Assert(t, qt.IsNil(err))
	}
	cfg := piecesync.NewDefaultConfig()
	cfg.AlertWaitTimeout = 10 * time.Millisecond
	cfg.PiecePollInterval = 50 * time.Millisecond
	c := piecesync.NewCoordinator(e, cfg)
	t.Cleanup(func() {
		c.Close()
		e.Close()
	})
	return &swarm{data, info, e, c}
}

func (s *swarm) add(t *testing.T) piecesync.Handle {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := s.c.AddTorrentAndWait(ctx, s.info.Magnet().String())
	qt.Assert(t, qt.IsNil(err))
	return h
}

func TestReaderStreamsWholeContent(t *testing.T) {
	s := newSwarm(t, 300_000, 32<<10, true)
	h := s.add(t)
	info, ok := s.c.Info(h.InfoHash())
	qt.Assert(t, qt.IsTrue(ok))
	r := s.c.NewReader(h, info)
	defer r.Close()
	got, err := io.ReadAll(r)
	qt.Assert(t, qt.IsNil(err))
	if diff := cmp.Diff(s.data, got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}

func TestReaderSeekAndReadAt(t *testing.T) {
	s := newSwarm(t, 100_000, 16<<10, true)
	h := s.add(t)
	r := s.c.NewReader(h, s.info)
	off, err := r.Seek(-1000, io.SeekEnd)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(off, int64(99_000)))
	b := make([]byte, 2000)
	n, err := io.ReadFull(r, b)
	qt.Assert(t, qt.ErrorIs(err, io.ErrUnexpectedEOF))
	qt.Assert(t, qt.Equals(n, 1000))
	qt.Assert(t, qt.DeepEquals(b[:n], s.data[99_000:]))
	// Spans a piece boundary.
	n, err = r.ReadAt(b, 16<<10-500)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(n, len(b)))
	qt.Assert(t, qt.DeepEquals(b, s.data[16<<10-500:16<<10+1500]))
	_, err = r.Seek(-1, io.SeekStart)
	qt.Assert(t, qt.ErrorIs(err, piecesync.ErrInvalidArgument))
	qt.Assert(t, qt.IsNil(r.Close()))
	_, err = r.Read(b)
	qt.Assert(t, qt.IsNotNil(err))
}

func TestConcurrentReadPiece(t *testing.T) {
	s := newSwarm(t, 64<<10, 64<<10, true)
	h := s.add(t)
	ctx := context.Background()
	qt.Assert(t, qt.IsTrue(s.c.WaitForPiece(ctx, h, 0)))
	var g errgroup.Group
	for i := range 16 {
		g.Go(func() error {
			start := i * 4000
			buf := make([]byte, 4000)
			n, err := s.c.ReadPiece(ctx, h, 0, start, len(buf), buf)
			if err != nil {
				return err
			}
			require.Equal(t, min(4000, 64<<10-start), n)
			require.Equal(t, s.data[start:start+n], buf[:n])
			return nil
		})
	}
	qt.Assert(t, qt.IsNil(g.Wait()))
	qt.Assert(t, qt.Equals(s.c.TorrentStatus(h.InfoHash()).ReadWaiters, 0))
}

func TestReaderPieceTimeout(t *testing.T) {
	s := newSwarm(t, 10_000, 1<<10, false)
	h, err := s.c.AddTorrent(s.info.InfoHash().HexString())
	qt.Assert(t, qt.IsNil(err))
	r := s.c.NewReader(h, s.info)
	r.SetPieceTimeout(20 * time.Millisecond)
	_, err = r.ReadAt(make([]byte, 10), 5000)
	qt.Assert(t, qt.ErrorIs(err, piecesync.ErrTimeout))
	var te errorsx.Timeout
	qt.Assert(t, qt.ErrorAs(err, &te))
	qt.Assert(t, qt.Equals(te.Timedout(), 20*time.Millisecond))
}

// A deadline on the caller's context isn't mistaken for the piece timeout.
func TestReaderContextDeadlineNotPieceTimeout(t *testing.T) {
	s := newSwarm(t, 10_000, 1<<10, false)
	h, err := s.c.AddTorrent(s.info.InfoHash().HexString())
	qt.Assert(t, qt.IsNil(err))
	r := s.c.NewReader(h, s.info)
	r.SetPieceTimeout(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.ReadAtContext(ctx, make([]byte, 10), 5000)
	qt.Assert(t, qt.ErrorIs(err, context.DeadlineExceeded))
	qt.Assert(t, qt.IsFalse(errors.Is(err, piecesync.ErrTimeout)))
	var te errorsx.Timeout
	qt.Assert(t, qt.IsFalse(errors.As(err, &te)))
}

func TestReadPieceNotDownloaded(t *testing.T) {
	s := newSwarm(t, 10_000, 1<<10, false)
	h, err := s.c.AddTorrent(s.info.InfoHash().HexString())
	qt.Assert(t, qt.IsNil(err))
	n, err := s.c.ReadPiece(context.Background(), h, 3, 0, 10, make([]byte, 10))
	qt.Assert(t, qt.Equals(n, -1))
	qt.Assert(t, qt.ErrorIs(err, piecesync.ErrReadFailed))
	qt.Assert(t, qt.ErrorIs(err, piecesync.ErrNotFound))
}

func TestAddTorrentParseError(t *testing.T) {
	s := newSwarm(t, 10, 10, false)
	_, err := s.c.AddTorrent("magnet:?dn=nothing")
	qt.Assert(t, qt.ErrorIs(err, piecesync.ErrEngineFailure))
	qt.Assert(t, qt.ErrorIs(err, piecesync.ErrParse))
}

func TestReadPieceAfterEngineClosed(t *testing.T) {
	s := newSwarm(t, 10_000, 1<<10, true)
	h := s.add(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	qt.Assert(t, qt.IsTrue(s.c.WaitForPiece(ctx, h, 0)))
	qt.Assert(t, qt.IsNil(s.engine.Close()))
	n, err := s.c.ReadPiece(ctx, h, 0, 0, 10, make([]byte, 10))
	qt.Assert(t, qt.Equals(n, -1))
	qt.Assert(t, qt.ErrorIs(err, piecesync.ErrReadFailed))
	qt.Assert(t, qt.ErrorIs(err, piecesync.ErrClosed))
}
