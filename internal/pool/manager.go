package pool

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopherhttp/httpclient/internal/connio"
	"github.com/gopherhttp/httpclient/internal/constants"
	"github.com/gopherhttp/httpclient/internal/httperr"
)

// Settings configures a Manager's idle-connection bookkeeping. Per-dial
// parameters (TLS, proxy) travel in DialSpec instead, since they vary per
// request target.
type Settings struct {
	// MaxIdlePerKey caps idle connections retained per ConnKey. Default 2.
	MaxIdlePerKey int
	// MaxConnsPerKey caps checked-out (active) connections per ConnKey;
	// idle pooled connections are not counted. 0 = unlimited.
	MaxConnsPerKey int
	// MaxIdleTime is how long an idle connection may sit before the
	// reaper (or a subsequent Acquire) discards it. Default 30s.
	MaxIdleTime time.Duration
	// WaitTimeout bounds how long Acquire blocks when MaxConnsPerKey is
	// exhausted. 0 means fail immediately instead of waiting.
	WaitTimeout time.Duration

	// TLS configures mTLS, custom CAs, and version/cipher policy for every
	// TLS connection this Manager dials.
	TLS TLSSettings
}

func (s Settings) withDefaults() Settings {
	if s.MaxIdlePerKey <= 0 {
		s.MaxIdlePerKey = 2
	}
	if s.MaxIdleTime <= 0 {
		s.MaxIdleTime = constants.DefaultIdleTimeout
	}
	return s
}

type idleConn struct {
	conn     connio.Connection
	metadata Metadata
	lastUsed time.Time
}

type hostPool struct {
	mu        sync.Mutex
	idle      []*idleConn
	numActive int
	cond      *sync.Cond
}

func newHostPool() *hostPool {
	hp := &hostPool{idle: make([]*idleConn, 0, 4)}
	hp.cond = sync.NewCond(&hp.mu)
	return hp
}

// Manager owns every per-key idle stack plus the reaper goroutine that
// evicts connections older than Settings.MaxIdleTime.
type Manager struct {
	settings      Settings
	baseTLSConfig *tls.Config
	pools         sync.Map // ConnKey -> *hostPool

	statsReused  uint64
	statsCreated uint64
	statsTimeout uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// NewManager starts a Manager with its reaper goroutine running. A
// malformed TLSSettings (unparseable certificate/CA) fails fast here
// rather than on the first dial.
func NewManager(settings Settings) (*Manager, error) {
	tlsCfg, err := settings.TLS.Build()
	if err != nil {
		return nil, httperr.Validation(err.Error())
	}
	m := &Manager{
		settings:      settings.withDefaults(),
		baseTLSConfig: tlsCfg,
		stopCh:        make(chan struct{}),
	}
	m.wg.Add(1)
	go m.reap()
	return m, nil
}

// BaseTLSConfig returns the *tls.Config built from Settings.TLS, which
// the request engine passes as DialSpec.TLSConfig for every dial; a
// Request has no TLS config of its own.
func (m *Manager) BaseTLSConfig() *tls.Config {
	return m.baseTLSConfig
}

func (m *Manager) poolFor(key ConnKey) *hostPool {
	v, _ := m.pools.LoadOrStore(key, newHostPool())
	return v.(*hostPool)
}

// Acquire returns a pooled connection for spec's key if one is idle and
// still fresh, otherwise dials a new one (direct or through the
// configured proxy) and upgrades it to TLS when Secure is set. The
// returned ManagedConn must be released exactly once.
func (m *Manager) Acquire(ctx context.Context, spec DialSpec) (*ManagedConn, error) {
	if m.closed.Load() {
		return nil, httperr.ManagerClosed()
	}

	key := spec.key()
	hp := m.poolFor(key)

	if mc := m.tryReuse(hp, key); mc != nil {
		return mc, nil
	}

	if blocked, ok := m.reserveSlot(hp); !ok {
		atomic.AddUint64(&m.statsTimeout, 1)
		return nil, httperr.Connection(spec.Host, spec.Port, context.DeadlineExceeded)
	} else if blocked {
		// reserveSlot already incremented numActive after waiting.
	}

	conn, meta, err := dial(ctx, spec)
	if err != nil {
		hp.mu.Lock()
		hp.numActive--
		hp.cond.Signal()
		hp.mu.Unlock()
		return nil, err
	}
	meta.ConnectionID = nextConnID()

	atomic.AddUint64(&m.statsCreated, 1)
	return &ManagedConn{
		Conn:      conn,
		Key:       key,
		Fresh:     true,
		Metadata:  meta,
		mgr:       m,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
	}, nil
}

// tryReuse pops the most recently released idle connection for key,
// skipping and closing any that have aged out.
func (m *Manager) tryReuse(hp *hostPool, key ConnKey) *ManagedConn {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	for len(hp.idle) > 0 {
		n := len(hp.idle)
		ic := hp.idle[n-1]
		hp.idle = hp.idle[:n-1]

		if time.Since(ic.lastUsed) > m.settings.MaxIdleTime {
			ic.conn.Close()
			continue
		}

		hp.numActive++
		atomic.AddUint64(&m.statsReused, 1)
		return &ManagedConn{
			Conn:      ic.conn,
			Key:       key,
			Fresh:     false,
			Metadata:  ic.metadata,
			mgr:       m,
			createdAt: time.Now(),
			lastUsed:  ic.lastUsed,
		}
	}
	return nil
}

// reserveSlot blocks (up to WaitTimeout) until numActive is below
// MaxConnsPerKey, then reserves a slot for the caller's new dial.
func (m *Manager) reserveSlot(hp *hostPool) (waited bool, ok bool) {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	max := m.settings.MaxConnsPerKey
	if max <= 0 || hp.numActive < max {
		hp.numActive++
		return false, true
	}
	if m.settings.WaitTimeout <= 0 {
		return false, false
	}

	// Wake ourselves even if nothing ever releases a slot: a timer fires
	// after WaitTimeout and broadcasts, so the cond.Wait() loop below
	// re-checks timedOut instead of blocking forever. The timer's
	// callback takes hp.mu itself rather than relying on the caller's
	// lock, since it runs on its own goroutine.
	var timedOut bool
	timer := time.AfterFunc(m.settings.WaitTimeout, func() {
		hp.mu.Lock()
		timedOut = true
		hp.mu.Unlock()
		hp.cond.Broadcast()
	})
	defer timer.Stop()

	for hp.numActive >= max && !timedOut {
		hp.cond.Wait()
	}
	if hp.numActive >= max {
		return true, false
	}
	hp.numActive++
	return true, true
}

// release is invoked exactly once per ManagedConn via the sync.Once in
// Release.
func (m *Manager) release(mc *ManagedConn, d Disposition) {
	hp := m.poolFor(mc.Key)

	hp.mu.Lock()
	defer hp.mu.Unlock()

	hp.numActive--

	// A release that arrives after Close must not repopulate the pool;
	// nothing would ever evict the connection again.
	if d != Reuse || m.closed.Load() || len(hp.idle) >= m.settings.MaxIdlePerKey {
		mc.Conn.Close()
		hp.cond.Signal()
		return
	}

	hp.idle = append(hp.idle, &idleConn{
		conn:     mc.Conn,
		metadata: mc.Metadata,
		lastUsed: time.Now(),
	})
	hp.cond.Signal()
}

func (m *Manager) reap() {
	defer m.wg.Done()
	ticker := time.NewTicker(constants.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.pools.Range(func(_, v interface{}) bool {
				hp := v.(*hostPool)
				hp.mu.Lock()
				kept := hp.idle[:0]
				now := time.Now()
				for _, ic := range hp.idle {
					if now.Sub(ic.lastUsed) > m.settings.MaxIdleTime {
						ic.conn.Close()
					} else {
						kept = append(kept, ic)
					}
				}
				hp.idle = kept
				hp.mu.Unlock()
				return true
			})
		case <-m.stopCh:
			return
		}
	}
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	ActiveConns  int
	IdleConns    int
	TotalReused  int
	TotalCreated int
	WaitTimeouts int
}

func (m *Manager) Stats() Stats {
	var s Stats
	m.pools.Range(func(_, v interface{}) bool {
		hp := v.(*hostPool)
		hp.mu.Lock()
		s.ActiveConns += hp.numActive
		s.IdleConns += len(hp.idle)
		hp.mu.Unlock()
		return true
	})
	s.TotalReused = int(atomic.LoadUint64(&m.statsReused))
	s.TotalCreated = int(atomic.LoadUint64(&m.statsCreated))
	s.WaitTimeouts = int(atomic.LoadUint64(&m.statsTimeout))
	return s
}

// Close stops the reaper and closes every idle connection. Acquire
// called after Close fails with httperr.ManagerClosed.
func (m *Manager) Close() error {
	m.closed.Store(true)
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.pools.Range(func(key, v interface{}) bool {
		hp := v.(*hostPool)
		hp.mu.Lock()
		for _, ic := range hp.idle {
			ic.conn.Close()
		}
		hp.idle = nil
		hp.mu.Unlock()
		m.pools.Delete(key)
		return true
	})
	return nil
}
