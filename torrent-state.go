package piecesync

import (
	"context"
	"fmt"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/sync"

	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/types/infohash"
)

// Metadata readiness for one torrent. Received and failed are terminal and mutually exclusive.
type torrentState struct {
	infoHash infohash.T

	mu               sync.Mutex
	info             *metainfo.Info
	err              error
	metadataReceived chansync.SetOnce
	metadataFailed   chansync.SetOnce
	// Wakes waiters without resolving the metadata. Only used at shutdown.
	cancelled chansync.SetOnce
}

func (me *torrentState) setMetadataReceived(info *metainfo.Info) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.metadataFailed.IsSet() {
		return false
	}
	if !me.metadataReceived.Set() {
		return false
	}
	me.info = info
	return true
}

func (me *torrentState) setMetadataFailed(err error) bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.metadataReceived.IsSet() {
		return false
	}
	if !me.metadataFailed.Set() {
		return false
	}
	me.err = err
	return true
}

func (me *torrentState) cancel() {
	me.cancelled.Set()
}

func (me *torrentState) metadataPending() bool {
	return !me.metadataReceived.IsSet() && !me.metadataFailed.IsSet()
}

func (me *torrentState) metadataInfo() *metainfo.Info {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.info
}

// Returns nil once metadata is received. Waits until the metadata resolves, the state is
// cancelled, or ctx is done.
func (me *torrentState) waitForMetadata(ctx context.Context) error {
	select {
	case <-me.metadataReceived.Done():
	case <-me.metadataFailed.Done():
	case <-me.cancelled.Done():
	case <-ctx.Done():
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	switch {
	case me.metadataReceived.IsSet():
		return nil
	case me.metadataFailed.IsSet():
		if me.err == nil {
			return ErrMetadataFailed
		}
		return fmt.Errorf("%w: %w", ErrMetadataFailed, me.err)
	case me.cancelled.IsSet():
		return ErrClosed
	default:
		return ctx.Err()
	}
}

type torrentRegistry struct {
	mu       sync.Mutex
	torrents map[infohash.T]*torrentState
	closed   bool
}

// Torrents are never removed individually, so the returned state remains the one registered for
// the infohash until the registry is cancelled.
func (me *torrentRegistry) getOrCreate(ih infohash.T) *torrentState {
	me.mu.Lock()
	defer me.mu.Unlock()
	if ts, ok := me.torrents[ih]; ok {
		return ts
	}
	ts := &torrentState{infoHash: ih}
	if me.closed {
		ts.cancel()
		return ts
	}
	if me.torrents == nil {
		me.torrents = make(map[infohash.T]*torrentState)
	}
	me.torrents[ih] = ts
	return ts
}

func (me *torrentRegistry) get(ih infohash.T) (*torrentState, bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	ts, ok := me.torrents[ih]
	return ts, ok
}

func (me *torrentRegistry) cancelAll() {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.closed = true
	for _, ts := range me.torrents {
		ts.cancel()
	}
}
