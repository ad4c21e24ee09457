// Streams local content through an in-memory engine and the piece coordinator, the way a media
// player would read a torrent that's still downloading.
//
// Example run:
// $ go run ./cmd/piecesync copy --download-rate 4MiB --shuffle movie.mkv -o /dev/null
// 1.000231s: streamed 3.9 MB/52 MB, 15/199 pieces: 3.9 MB/s
// 2.000544s: streamed 8.1 MB/52 MB, 31/199 pieces: 4.2 MB/s
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/log"
	"github.com/anacrolix/tagflag"
)

var flags struct {
	Debug      bool
	*CopyCmd   `arg:"subcommand:copy" help:"stream a file through the coordinator"`
	*ServeCmd  `arg:"subcommand:serve" help:"serve a file over HTTP through the coordinator"`
	*VerifyCmd `arg:"subcommand:verify" help:"hash a file into a piece map and print its magnet link"`
}

// Flags shared by the subcommands that run an engine.
type EngineFlags struct {
	PieceLength  tagflag.Bytes  `default:"256KiB" help:"piece length of the generated piece map"`
	DownloadRate *tagflag.Bytes `help:"max bytes per second the engine downloads"`
	Shuffle      bool           `help:"download pieces out of order"`
	PieceTimeout time.Duration  `help:"how long a read waits for any one piece, zero waits forever"`
}

func main() {
	defer envpprof.Stop()
	if err := mainErr(); err != nil {
		log.Default.Levelf(log.Error, "error in main: %v", err)
		os.Exit(1)
	}
}

func mainErr() error {
	p := arg.MustParse(&flags)
	if !flags.Debug {
		log.Default = log.Default.FilterLevel(log.Info)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	switch {
	case flags.CopyCmd != nil:
		return copyErr(ctx, flags.CopyCmd)
	case flags.ServeCmd != nil:
		return serveErr(ctx, flags.ServeCmd)
	case flags.VerifyCmd != nil:
		return verifyErr(flags.VerifyCmd)
	default:
		p.Fail(fmt.Sprintf("unexpected subcommand: %v", p.Subcommand()))
		panic("unreachable")
	}
}
