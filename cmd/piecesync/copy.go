package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/anacrolix/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/piecesync/metainfo"
)

type CopyCmd struct {
	EngineFlags
	Output   string `arg:"-o" help:"where to write the streamed content, defaults to stdout"`
	Progress bool   `default:"true"`
	Verify   bool   `default:"true" help:"check the streamed content hashes to the same piece map"`
	File     string `arg:"positional,required"`
}

type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (me *countingWriter) Write(b []byte) (n int, err error) {
	n, err = me.w.Write(b)
	me.n.Add(int64(n))
	return
}

func copyErr(ctx context.Context, cmd *CopyCmd) error {
	s, err := openSession(ctx, cmd.File, cmd.EngineFlags)
	if err != nil {
		return err
	}
	defer s.Close()
	var out io.Writer = os.Stdout
	if cmd.Output != "" {
		f, err := os.Create(cmd.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	var g errgroup.Group
	// Hashes the streamed content as it's written out.
	check := metainfo.Info{Name: s.info.Name, PieceLength: s.info.PieceLength}
	pr, pw := io.Pipe()
	if cmd.Verify {
		out = io.MultiWriter(out, pw)
		g.Go(func() error {
			err := check.GeneratePieces(pr)
			pr.CloseWithError(err)
			return err
		})
	}
	cw := &countingWriter{w: out}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cmd.Progress {
		g.Go(func() error {
			progressBar(ctx, s, &cw.n)
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		r := s.newReader(ctx)
		defer r.Close()
		_, err := io.Copy(cw, r)
		pw.CloseWithError(err)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("streaming %q: %w", cmd.File, err)
	}
	log.Default.Levelf(log.Info, "streamed %s", humanize.Bytes(uint64(cw.n.Load())))
	if !cmd.Verify {
		return nil
	}
	if check.InfoHash() != s.info.InfoHash() {
		return fmt.Errorf("streamed content doesn't match %v", s.info.InfoHash())
	}
	log.Default.Levelf(log.Info, "verified %v", s.info.InfoHash())
	return nil
}

func progressBar(ctx context.Context, s *session, written *atomic.Int64) {
	start := time.Now()
	var last int64
	var lastLine string
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n := written.Load()
		completed := 0
		for i := range s.info.NumPieces() {
			if s.engine.HavePiece(s.handle, i) {
				completed++
			}
		}
		line := fmt.Sprintf(
			"%v: streamed %s/%s, %d/%d pieces: %s/s\n",
			time.Since(start).Round(time.Microsecond),
			humanize.Bytes(uint64(n)),
			humanize.Bytes(uint64(s.info.TotalLength())),
			completed,
			s.info.NumPieces(),
			humanize.Bytes(uint64(n-last)),
		)
		if line != lastLine {
			lastLine = line
			os.Stderr.WriteString(line)
		}
		last = n
	}
}
