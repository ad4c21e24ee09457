package piecesync

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/anacrolix/sync"

	"github.com/anacrolix/piecesync/internal/errorsx"
	"github.com/anacrolix/piecesync/metainfo"
)

// Reader streams a torrent's content through a Coordinator. Reads block until the pieces they
// cover are available.
type Reader struct {
	c    *Coordinator
	h    Handle
	info *metainfo.Info

	mu           sync.Mutex
	ctx          context.Context
	pieceTimeout time.Duration
	pos          int64
	closed       bool
}

var (
	_ io.ReadSeekCloser = (*Reader)(nil)
	_ io.ReaderAt       = (*Reader)(nil)
)

// info must be the torrent's metadata. See Coordinator.Info.
func (c *Coordinator) NewReader(h Handle, info *metainfo.Info) *Reader {
	return &Reader{
		c:    c,
		h:    h,
		info: info,
		ctx:  context.Background(),
	}
}

// Sets the context for Read and ReadAt.
func (r *Reader) SetContext(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
}

// Limits how long a read waits for any one piece. Zero waits forever.
func (r *Reader) SetPieceTimeout(d time.Duration) {
	r.mu.Lock()
	r.pieceTimeout = d
	r.mu.Unlock()
}

func (r *Reader) settings() (context.Context, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, 0, fs.ErrClosed
	}
	return r.ctx, r.pieceTimeout, nil
}

func (r *Reader) Read(b []byte) (n int, err error) {
	ctx, _, err := r.settings()
	if err != nil {
		return
	}
	return r.ReadContext(ctx, b)
}

// Reads from the current position, which is advanced by the bytes read.
func (r *Reader) ReadContext(ctx context.Context, b []byte) (n int, err error) {
	r.mu.Lock()
	pos := r.pos
	r.mu.Unlock()
	n, err = r.ReadAtContext(ctx, b, pos)
	r.mu.Lock()
	r.pos = pos + int64(n)
	r.mu.Unlock()
	if n != 0 && err == io.EOF {
		err = nil
	}
	return
}

func (r *Reader) ReadAt(b []byte, off int64) (n int, err error) {
	ctx, _, err := r.settings()
	if err != nil {
		return
	}
	return r.ReadAtContext(ctx, b, off)
}

func (r *Reader) ReadAtContext(ctx context.Context, b []byte, off int64) (n int, err error) {
	_, timeout, err := r.settings()
	if err != nil {
		return
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %v", ErrInvalidArgument, off)
	}
	total := r.info.TotalLength()
	for len(b) > 0 && off < total {
		p := r.info.Piece(r.info.PieceIndexForOffset(off))
		err = r.waitForPiece(ctx, p.Index(), timeout)
		if err != nil {
			return
		}
		pieceOff := off - p.Offset()
		want := int(min(int64(len(b)), p.Length()-pieceOff))
		var m int
		m, err = r.c.ReadPiece(ctx, r.h, p.Index(), int(pieceOff), want, b[:want])
		if err != nil {
			err = fmt.Errorf("reading piece %v: %w", p.Index(), err)
			return
		}
		if m == 0 {
			err = io.ErrUnexpectedEOF
			return
		}
		n += m
		off += int64(m)
		b = b[m:]
	}
	if len(b) != 0 {
		err = io.EOF
	}
	return
}

// Only the piece timeout is reported as ErrTimeout. A deadline on ctx itself comes back as ctx's
// own cause.
func (r *Reader) waitForPiece(ctx context.Context, piece int, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(
			ctx, timeout,
			errorsx.Timedout(fmt.Errorf("%w: waiting for piece %v", ErrTimeout, piece), timeout))
		defer cancel()
	}
	if r.c.WaitForPiece(ctx, r.h, piece) {
		return nil
	}
	if r.c.closed.IsSet() {
		return ErrClosed
	}
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return ErrClosed
}

func (r *Reader) Seek(off int64, whence int) (ret int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		off += r.pos
	case io.SeekEnd:
		off += r.info.TotalLength()
	default:
		return -1, fmt.Errorf("%w: whence %v", ErrInvalidArgument, whence)
	}
	if off < 0 {
		return -1, fmt.Errorf("%w: seek to negative offset %v", ErrInvalidArgument, off)
	}
	r.pos = off
	return off, nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
