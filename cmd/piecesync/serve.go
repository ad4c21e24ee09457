package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/piecesync/internal/errorsx"
)

type ServeCmd struct {
	EngineFlags
	Addr string `default:"localhost:8080" help:"HTTP listen address"`
	File string `arg:"positional,required"`
}

func serveErr(ctx context.Context, cmd *ServeCmd) error {
	s, err := openSession(ctx, cmd.File, cmd.EngineFlags)
	if err != nil {
		return err
	}
	defer s.Close()
	modTime := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		reader := s.newReader(r.Context())
		defer reader.Close()
		http.ServeContent(w, r, s.info.Name, modTime, reader)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := s.c.TorrentStatus(s.handle.InfoHash())
		fmt.Fprintf(w, "%+v\n", status)
		fmt.Fprintf(w, "%+v\n", s.store.Stats())
		fmt.Fprintf(w, "pump: %v\n", s.c.PumpState())
	})
	srv := &http.Server{Addr: cmd.Addr, Handler: mux}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Default.Levelf(log.Info, "serving %q (%v) on http://%s/", s.info.Name, s.info.Magnet(), cmd.Addr)
		return errorsx.Ignore(srv.ListenAndServe(), http.ErrServerClosed)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
