package memengine

import (
	"context"
	"io"
	"time"

	"github.com/anacrolix/missinggo/v2/panicif"
	"golang.org/x/time/rate"
)

// Reads seeded data no faster than the limiter allows, as if it were arriving from peers.
type rateLimitedReaderAt struct {
	ctx context.Context
	l   *rate.Limiter
	r   io.ReaderAt
}

// Reads are capped at the limiter's burst, so callers must handle short reads.
func (me rateLimitedReaderAt) ReadAt(b []byte, off int64) (n int, err error) {
	if me.l.Burst() != 0 {
		b = b[:min(len(b), me.l.Burst())]
	}
	t := time.Now()
	n, err = me.r.ReadAt(b, off)
	r := me.l.ReserveN(t, n)
	panicif.False(r.OK())
	timer := time.NewTimer(r.DelayFrom(t))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-me.ctx.Done():
		r.CancelAt(t)
		return 0, context.Cause(me.ctx)
	}
	return
}
