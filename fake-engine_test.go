package piecesync

import (
	"time"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/sync"

	"github.com/anacrolix/piecesync/metainfo"
	"github.com/anacrolix/piecesync/types/infohash"
)

type fakeHandle struct {
	ih infohash.T
}

func (h fakeHandle) InfoHash() infohash.T {
	return h.ih
}

// An Engine that does nothing on its own. Tests decide which pieces it has and push its alerts.
type fakeEngine struct {
	mu        sync.Mutex
	have      map[pieceKey]bool
	requests  []pieceKey
	alerts    []Alert
	addErr    error
	queued    chansync.BroadcastCond
	haveCalls int
}

var _ Engine = (*fakeEngine)(nil)

func (e *fakeEngine) AddTorrent(descriptor string) (Handle, error) {
	if e.addErr != nil {
		return nil, e.addErr
	}
	m, err := metainfo.ParseInfoHashOrMagnet(descriptor)
	if err != nil {
		return nil, err
	}
	return fakeHandle{m.InfoHash}, nil
}

func (e *fakeEngine) RequestPieceRead(h Handle, piece int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, pieceKey{InfoHash: h.InfoHash(), Index: piece})
}

func (e *fakeEngine) HavePiece(h Handle, piece int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.haveCalls++
	return e.have[pieceKey{InfoHash: h.InfoHash(), Index: piece}]
}

func (e *fakeEngine) setHave(h Handle, piece int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.have == nil {
		e.have = make(map[pieceKey]bool)
	}
	e.have[pieceKey{InfoHash: h.InfoHash(), Index: piece}] = true
}

func (e *fakeEngine) numRequests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func (e *fakeEngine) WaitForAlert(timeout time.Duration) bool {
	e.mu.Lock()
	if len(e.alerts) != 0 {
		e.mu.Unlock()
		return true
	}
	queued := e.queued.Signaled()
	e.mu.Unlock()
	select {
	case <-queued:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (e *fakeEngine) PopAlerts() (ret []Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ret = e.alerts
	e.alerts = nil
	return
}

func (e *fakeEngine) push(as ...Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = append(e.alerts, as...)
	e.queued.Broadcast()
}

func testInfoHash(b byte) (ret infohash.T) {
	for i := range ret {
		ret[i] = b
	}
	return
}

func testConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.AlertWaitTimeout = 10 * time.Millisecond
	cfg.PiecePollInterval = 10 * time.Millisecond
	return cfg
}
