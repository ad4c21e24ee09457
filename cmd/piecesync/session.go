package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/anacrolix/log"
	"github.com/davecgh/go-spew/spew"
	"golang.org/x/time/rate"

	"github.com/anacrolix/piecesync"
	"github.com/anacrolix/piecesync/internal/errorsx"
	"github.com/anacrolix/piecesync/memengine"
	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/storage"
)

// A file seeded into a memengine and added back through a coordinator.
type session struct {
	file    *os.File
	info    *metainfo.Info
	store   *storage.Transient
	engine  *memengine.Engine
	c       *piecesync.Coordinator
	handle  piecesync.Handle
	timeout time.Duration
}

func openSession(ctx context.Context, path string, ef EngineFlags) (_ *session, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()
	info, err := infoForFile(f, ef.PieceLength.Int64())
	if err != nil {
		return
	}
	logger := log.Default.WithNames("piecesync")
	store := storage.NewTransient(storage.TransientOpts{Logger: logger})
	ecfg := memengine.NewDefaultConfig()
	ecfg.Storage = store
	ecfg.Shuffle = ef.Shuffle
	if ef.DownloadRate != nil {
		ecfg.DownloadRate = rate.NewLimiter(rate.Limit(*ef.DownloadRate), 1<<16)
	}
	e := memengine.New(ecfg)
	if _, err = e.Seed(info, f); err != nil {
		e.Close()
		return
	}
	cfg := piecesync.NewDefaultConfig()
	cfg.Logger = logger
	c := piecesync.NewCoordinator(e, cfg)
	s := &session{file: f, info: info, store: store, engine: e, c: c, timeout: ef.PieceTimeout}
	s.handle, err = c.AddTorrentAndWait(ctx, info.Magnet().String())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("adding torrent: %w", err)
	}
	return s, nil
}

func (s *session) newReader(ctx context.Context) *piecesync.Reader {
	r := s.c.NewReader(s.handle, s.info)
	r.SetContext(ctx)
	r.SetPieceTimeout(s.timeout)
	return r
}

// The coordinator is closed before the engine, so no read is left waiting on a dropped alert.
func (s *session) Close() error {
	err := errorsx.Compact(s.c.Close(), s.engine.Close())
	if flags.Debug {
		spew.Dump(s.store.Stats())
	}
	return errorsx.Compact(err, s.file.Close())
}

func infoForFile(f *os.File, pieceLength int64) (*metainfo.Info, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	info := &metainfo.Info{
		Name:        fi.Name(),
		PieceLength: pieceLength,
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := info.GeneratePieces(f); err != nil {
		return nil, fmt.Errorf("generating pieces: %w", err)
	}
	return info, nil
}
