package piecesync

import (
	"context"
	"fmt"
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/types/infohash"
)

// Coordinator turns the engine's asynchronous requests and alerts into blocking calls that are safe
// to make from any number of goroutines.
type Coordinator struct {
	engine  Engine
	config  Config
	logger  log.Logger
	tracer  trace.Tracer
	metrics *metrics
	pump    *AlertPump

	torrents torrentRegistry
	pieces   pieceWaitRegistry
	reads    readWaitRegistry

	closed chansync.SetOnce
}

var _ AlertHandler = (*Coordinator)(nil)

// Creates a Coordinator and starts its AlertPump. A nil cfg uses NewDefaultConfig.
func NewCoordinator(engine Engine, cfg *Config) *Coordinator {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	c := &Coordinator{
		engine:  engine,
		config:  *cfg,
		logger:  cfg.Logger,
		tracer:  cfg.Tracer,
		metrics: newMetrics(),
	}
	if c.logger.IsZero() {
		c.logger = log.Default.WithNames("piecesync")
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.config.AlertWaitTimeout <= 0 {
		c.config.AlertWaitTimeout = 500 * time.Millisecond
	}
	if c.config.PiecePollInterval <= 0 {
		c.config.PiecePollInterval = time.Second
	}
	c.pieces.onLen = func(n int) { c.metrics.pieceWaiters.Set(float64(n)) }
	c.reads.onLen = func(n int) { c.metrics.readWaiters.Set(float64(n)) }
	if r := c.config.MetricsRegisterer; r != nil {
		if err := c.metrics.register(r); err != nil {
			c.logger.Levelf(log.Warning, "registering metrics: %v", err)
		}
	}
	c.pump = NewAlertPump(engine, c, c.config.AlertWaitTimeout, c.logger)
	c.pump.onAlert = func(a Alert) {
		c.metrics.alertsDispatched.WithLabelValues(a.Kind().String()).Inc()
	}
	// Can't fail on a fresh pump.
	_ = c.pump.Start()
	return c
}

// Adds the torrent and returns with its metadata possibly still pending.
func (c *Coordinator) AddTorrent(descriptor string) (Handle, error) {
	if c.closed.IsSet() {
		return nil, ErrClosed
	}
	h, err := c.engine.AddTorrent(descriptor)
	if err != nil {
		return nil, &EngineError{Op: "add torrent", Err: err}
	}
	c.torrents.getOrCreate(h.InfoHash())
	c.logger.Levelf(log.Debug, "added torrent %v", h.InfoHash())
	return h, nil
}

// Adds the torrent and waits for its metadata. The handle is returned even if waiting fails.
func (c *Coordinator) AddTorrentAndWait(ctx context.Context, descriptor string) (Handle, error) {
	h, err := c.AddTorrent(descriptor)
	if err != nil {
		return nil, err
	}
	return h, c.waitForMetadata(ctx, h.InfoHash())
}

// Blocks until the torrent's metadata is received or fails. Returns true only if it was received.
func (c *Coordinator) WaitForMetadata(ctx context.Context, ih infohash.T) bool {
	return c.waitForMetadata(ctx, ih) == nil
}

func (c *Coordinator) waitForMetadata(ctx context.Context, ih infohash.T) (err error) {
	ctx, span := c.tracer.Start(ctx, "WaitForMetadata",
		trace.WithAttributes(attribute.String("infohash", ih.HexString())))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return c.torrents.getOrCreate(ih).waitForMetadata(ctx)
}

// The torrent's metadata, if it's been received and the engine provided it.
func (c *Coordinator) Info(ih infohash.T) (*metainfo.Info, bool) {
	ts, ok := c.torrents.get(ih)
	if !ok {
		return nil, false
	}
	info := ts.metadataInfo()
	return info, info != nil
}

// Makes one timed attempt to wait for the piece. Timing out is not an error: the piece may still be
// downloading.
func (c *Coordinator) WaitForPieceTimeout(h Handle, piece int, timeout time.Duration) bool {
	return c.waitForPieceTimeout(context.Background(), h, piece, timeout)
}

func (c *Coordinator) waitForPieceTimeout(ctx context.Context, h Handle, piece int, timeout time.Duration) bool {
	if piece < 0 {
		return false
	}
	if c.engine.HavePiece(h, piece) {
		return true
	}
	key := pieceKey{InfoHash: h.InfoHash(), Index: piece}
	pw := c.pieces.getOrCreate(key)
	// The piece may have finished between the check and the waiter being registered, in which case
	// its alert found nothing to signal.
	if c.engine.HavePiece(h, piece) {
		c.pieces.signalPieceFinished(key)
		return true
	}
	if pw.wait(ctx, timeout) {
		return true
	}
	if c.engine.HavePiece(h, piece) {
		// Finished without an alert reaching the waiter.
		c.pieces.signalPieceFinished(key)
		return true
	}
	return false
}

// Blocks until the piece is available, polling HavePiece every Config.PiecePollInterval. Returns
// false if ctx is done or the Coordinator is closed first.
func (c *Coordinator) WaitForPiece(ctx context.Context, h Handle, piece int) (ok bool) {
	if piece < 0 {
		return false
	}
	ctx, span := c.tracer.Start(ctx, "WaitForPiece", trace.WithAttributes(
		attribute.String("infohash", h.InfoHash().HexString()),
		attribute.Int("piece", piece)))
	defer func() {
		if !ok {
			span.SetStatus(codes.Error, "piece not available")
		}
		span.End()
	}()
	for {
		if c.waitForPieceTimeout(ctx, h, piece, c.config.PiecePollInterval) {
			return true
		}
		if ctx.Err() != nil || c.closed.IsSet() {
			return false
		}
	}
}

// Reads up to partLength bytes of the piece starting at partStart into dst, and returns how many
// were copied. It blocks until the engine delivers the piece, fails to, or ctx is done. On failure
// it returns -1 and the reason.
func (c *Coordinator) ReadPiece(
	ctx context.Context,
	h Handle,
	piece, partStart, partLength int,
	dst []byte,
) (n int, err error) {
	ctx, span := c.tracer.Start(ctx, "ReadPiece", trace.WithAttributes(
		attribute.String("infohash", h.InfoHash().HexString()),
		attribute.Int("piece", piece),
		attribute.Int("part.start", partStart),
		attribute.Int("part.length", partLength)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("copied", n))
		}
		span.End()
	}()
	if piece < 0 || partStart < 0 || partLength < 0 {
		return -1, fmt.Errorf("%w: piece %v, part start %v, part length %v",
			ErrInvalidArgument, piece, partStart, partLength)
	}
	rw := newReadWaiter(pieceKey{InfoHash: h.InfoHash(), Index: piece}, dst, partStart, partLength)
	first, err := c.reads.add(rw)
	if err != nil {
		return -1, err
	}
	if first || !c.config.DedupReadRequests {
		c.metrics.readRequests.Inc()
		c.engine.RequestPieceRead(h, piece)
	} else {
		c.metrics.readsDeduped.Inc()
		span.AddEvent("joined pending read")
	}
	select {
	case <-rw.done.Done():
	case <-ctx.Done():
		if c.reads.remove(rw) {
			return -1, context.Cause(ctx)
		}
		// Already taken by the pump, so it's about to complete.
		<-rw.done.Done()
	}
	return rw.result()
}

func (c *Coordinator) OnPieceFinished(a PieceFinishedAlert) {
	c.pieces.signalPieceFinished(pieceKey{InfoHash: a.Torrent, Index: a.Piece})
}

func (c *Coordinator) OnReadPiece(a ReadPieceAlert) {
	n := c.reads.onReadCompleted(pieceKey{InfoHash: a.Torrent, Index: a.Piece}, a.Buffer, a.Size)
	if n == 0 {
		c.logger.Levelf(log.Debug, "no readers waiting for %v", a)
	}
}

func (c *Coordinator) OnReadPieceFailed(a ReadPieceFailedAlert) {
	err := error(ErrReadFailed)
	if a.Err != nil {
		err = fmt.Errorf("%w: %w", ErrReadFailed, a.Err)
	}
	c.reads.onReadFailed(pieceKey{InfoHash: a.Torrent, Index: a.Piece}, err)
}

func (c *Coordinator) OnMetadataReceived(a MetadataReceivedAlert) {
	if !c.torrents.getOrCreate(a.Torrent).setMetadataReceived(a.Info) {
		c.logger.Levelf(log.Debug, "ignoring %v: metadata already resolved", a)
	}
}

func (c *Coordinator) OnMetadataFailed(a MetadataFailedAlert) {
	if !c.torrents.getOrCreate(a.Torrent).setMetadataFailed(a.Err) {
		c.logger.Levelf(log.Debug, "ignoring %v: metadata already resolved", a)
	}
}

// A torrent error before metadata arrives fails the metadata. After that it's the engine's
// problem.
func (c *Coordinator) OnTorrentError(a TorrentErrorAlert) {
	ts := c.torrents.getOrCreate(a.Torrent)
	if ts.metadataPending() && ts.setMetadataFailed(a.Err) {
		return
	}
	c.logger.Levelf(log.Warning, "ignoring %v", a)
}

type TorrentStatus struct {
	InfoHash         infohash.T
	Known            bool
	MetadataReceived bool
	MetadataFailed   bool
	PieceWaiters     int
	ReadWaiters      int
}

func (c *Coordinator) TorrentStatus(ih infohash.T) (ret TorrentStatus) {
	ret.InfoHash = ih
	if ts, ok := c.torrents.get(ih); ok {
		ret.Known = true
		ret.MetadataReceived = ts.metadataReceived.IsSet()
		ret.MetadataFailed = ts.metadataFailed.IsSet()
	}
	ret.PieceWaiters = c.pieces.countForTorrent(ih)
	ret.ReadWaiters = c.reads.countForTorrent(ih)
	return
}

func (c *Coordinator) PumpState() PumpState {
	return c.pump.State()
}

// Stops the AlertPump and wakes every blocked caller. Further calls return ErrClosed or false.
func (c *Coordinator) Close() error {
	if !c.closed.Set() {
		return nil
	}
	c.pump.Stop()
	c.torrents.cancelAll()
	c.pieces.cancelAll()
	c.reads.cancelAll()
	if r := c.config.MetricsRegisterer; r != nil {
		c.metrics.unregister(r)
	}
	c.logger.Levelf(log.Debug, "closed")
	return nil
}
