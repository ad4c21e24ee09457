package memengine

import (
	"time"

	"github.com/anacrolix/log"
	"golang.org/x/time/rate"

	"github.com/anacrolix/piecesync/storage"
)

type Config struct {
	Logger log.Logger
	// Where downloaded pieces are written. Defaults to a fresh storage.Transient.
	Storage storage.Contract
	// Limits how fast seeded content is "downloaded". Nil is unlimited. A finite limit needs a
	// non-zero burst.
	DownloadRate *rate.Limiter
	// AddTorrent fails with ErrEngineBusy beyond this many torrents. Zero is unlimited.
	MaxTorrents int
	// A torrent that isn't seeded within this long after it's added gets a MetadataFailedAlert. Zero
	// waits forever.
	MetadataTimeout time.Duration
	// Download pieces in random order instead of sequentially, like a swarm would.
	Shuffle bool
	// Size of the writes made into storage.
	BlockSize int
}

func NewDefaultConfig() *Config {
	return &Config{
		Logger:          log.Default.WithNames("memengine"),
		MetadataTimeout: time.Minute,
		BlockSize:       storage.DefaultBlockSize,
	}
}
