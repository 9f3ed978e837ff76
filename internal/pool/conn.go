package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopherhttp/httpclient/internal/connio"
)

// Disposition tells Release what to do with a connection once the caller
// is done with it.
type Disposition int

const (
	// Reuse returns the connection to the idle pool for its key.
	Reuse Disposition = iota
	// DontReuse closes the connection immediately; used whenever
	// response framing was ambiguous, the peer sent Connection: close,
	// or the caller aborted the read before the body was drained.
	DontReuse
)

// Metadata describes the connection a ManagedConn wraps, exposed to
// callers that want to report on connection reuse or TLS parameters.
type Metadata struct {
	ConnectedAddr string
	TLSVersion    string
	TLSCipher     string
	TLSServerName string
	TLSResumed    bool
	ProxyUsed     bool
	ProxyAddr     string
	ConnectionID  uint64
}

// ManagedConn is handed out by Manager.Acquire. The caller must call
// Release exactly once (the release-token pattern): omitting it leaks
// the pool slot, and double-calling it is a safe no-op thanks to the
// internal sync.Once, which matters when a request is aborted mid-flight
// by context cancellation and cleanup code also tries to release.
type ManagedConn struct {
	Conn     connio.Connection
	Key      ConnKey
	Fresh    bool // true if just dialed, false if handed back from the idle pool
	Metadata Metadata

	mgr         *Manager
	createdAt   time.Time
	lastUsed    time.Time
	releaseOnce sync.Once
}

// Release returns the connection to the pool (Reuse) or closes it
// (DontReuse). Safe to call from a deferred cleanup path even if the
// normal code path already released.
func (mc *ManagedConn) Release(d Disposition) {
	mc.releaseOnce.Do(func() {
		mc.mgr.release(mc, d)
	})
}

var connIDCounter uint64

func nextConnID() uint64 {
	return atomic.AddUint64(&connIDCounter, 1)
}
