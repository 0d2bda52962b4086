package pool

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Sternrassler/volley/pkg/logging"
)

// Common errors returned by the pool.
var (
	// ErrExhausted is returned by Acquire when no connection slot became
	// available within AcquireTimeout.
	ErrExhausted = errors.New("connection pool exhausted")

	// ErrClosed is returned for operations on a closed pool.
	ErrClosed = errors.New("connection pool is closed")
)

// Config holds pool configuration.
type Config struct {
	// MaxPerKey caps open connections (idle + checked out) per authority.
	MaxPerKey int

	// MaxTotal caps open connections across all authorities.
	// Zero disables the global cap.
	MaxTotal int

	// IdleTimeout evicts idle connections not reused within this window.
	// Zero keeps idle connections indefinitely.
	IdleTimeout time.Duration

	// AcquireTimeout bounds how long Acquire waits for a free slot before
	// failing with ErrExhausted. Zero fails immediately when caps are hit.
	AcquireTimeout time.Duration

	// DialTimeout bounds TCP connection establishment.
	DialTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake on https connections.
	TLSHandshakeTimeout time.Duration

	// TLSConfig is cloned per connection; ServerName defaults to the key
	// host when unset.
	TLSConfig *tls.Config

	// SweepInterval is how often the background sweeper scans for expired
	// idle connections. Zero disables the sweeper; expired connections are
	// then only dropped at checkout.
	SweepInterval time.Duration
}

// DefaultConfig returns a default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxPerKey:           10,
		MaxTotal:            100,
		IdleTimeout:         90 * time.Second,
		AcquireTimeout:      30 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		SweepInterval:       15 * time.Second,
	}
}

// Pool manages reusable HTTP connections keyed by authority, bounding open
// sockets per key and globally. Cap accounting lives in weighted semaphores
// holding one unit per open connection or in-progress dial.
type Pool struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	idle    map[Key][]*Conn
	open    map[Key]int
	sems    map[Key]*semaphore.Weighted
	total   *semaphore.Weighted
	waiters chan struct{}
	closed  bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a connection pool with the given configuration.
func New(cfg Config) (*Pool, error) {
	if cfg.MaxPerKey <= 0 {
		return nil, fmt.Errorf("pool: MaxPerKey must be positive, got %d", cfg.MaxPerKey)
	}
	if cfg.MaxTotal < 0 {
		return nil, fmt.Errorf("pool: MaxTotal must not be negative, got %d", cfg.MaxTotal)
	}
	if cfg.IdleTimeout < 0 {
		return nil, fmt.Errorf("pool: IdleTimeout must not be negative, got %v", cfg.IdleTimeout)
	}
	if cfg.AcquireTimeout < 0 {
		return nil, fmt.Errorf("pool: AcquireTimeout must not be negative, got %v", cfg.AcquireTimeout)
	}
	if cfg.DialTimeout < 0 {
		return nil, fmt.Errorf("pool: DialTimeout must not be negative, got %v", cfg.DialTimeout)
	}
	if cfg.TLSHandshakeTimeout < 0 {
		return nil, fmt.Errorf("pool: TLSHandshakeTimeout must not be negative, got %v", cfg.TLSHandshakeTimeout)
	}
	if cfg.SweepInterval < 0 {
		return nil, fmt.Errorf("pool: SweepInterval must not be negative, got %v", cfg.SweepInterval)
	}

	p := &Pool{
		cfg:     cfg,
		logger:  logging.NewLogger("pool"),
		idle:    make(map[Key][]*Conn),
		open:    make(map[Key]int),
		sems:    make(map[Key]*semaphore.Weighted),
		waiters: make(chan struct{}),
		stop:    make(chan struct{}),
	}
	if cfg.MaxTotal > 0 {
		p.total = semaphore.NewWeighted(int64(cfg.MaxTotal))
	}

	if cfg.IdleTimeout > 0 && cfg.SweepInterval > 0 {
		p.wg.Add(1)
		go p.sweep()
	}

	return p, nil
}

// Acquire returns a connection for key: an idle one when a live one exists,
// a newly dialed one when caps allow, and otherwise it suspends until a slot
// frees, AcquireTimeout elapses (ErrExhausted), or ctx is cancelled (the ctx
// error). Dial failures are returned as-is so callers can classify them.
func (p *Pool) Acquire(ctx context.Context, key Key) (*Conn, error) {
	start := time.Now()

	var timeout <-chan time.Time
	if p.cfg.AcquireTimeout > 0 {
		timer := time.NewTimer(p.cfg.AcquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		conn, dialable, wait, err := p.checkout(key)
		if err != nil {
			return nil, err
		}
		if conn != nil {
			poolReuses.WithLabelValues(key.String()).Inc()
			poolAcquireWait.Observe(time.Since(start).Seconds())
			return conn, nil
		}
		if dialable {
			c, err := p.dial(ctx, key)
			if err != nil {
				p.cancelReservation(key)
				return nil, err
			}
			poolAcquireWait.Observe(time.Since(start).Seconds())
			return c, nil
		}

		if p.cfg.AcquireTimeout <= 0 {
			poolExhausted.Inc()
			return nil, ErrExhausted
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			poolExhausted.Inc()
			p.logger.Warn().
				Str("authority", key.String()).
				Dur("waited", time.Since(start)).
				Msg("connection pool exhausted")
			return nil, ErrExhausted
		case <-wait:
			// a slot freed or an idle connection came back; retry
		}
	}
}

// checkout hands back an idle connection, permission to dial, or the wait
// channel to block on, in that priority order.
func (p *Pool) checkout(key Key) (*Conn, bool, <-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, nil, ErrClosed
	}

	// newest first, so cold connections age out instead of cycling
	for {
		stack := p.idle[key]
		n := len(stack)
		if n == 0 {
			break
		}
		c := stack[n-1]
		p.idle[key] = stack[:n-1]

		if c.expired(p.cfg.IdleTimeout) {
			p.dropLocked(c, "idle_timeout")
			continue
		}
		if !connReusable(c.Conn) {
			p.dropLocked(c, "stale")
			continue
		}

		p.updateGaugesLocked(key)
		return c, false, nil, nil
	}

	if p.reserveLocked(key) {
		return nil, true, nil, nil
	}

	return nil, false, p.waiters, nil
}

// dial opens, configures, and registers a new connection. The caller must
// already hold a cap reservation for key.
func (p *Pool) dial(ctx context.Context, key Key) (*Conn, error) {
	dctx := ctx
	if p.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.cfg.DialTimeout)
		defer cancel()
	}

	var d net.Dialer
	raw, err := d.DialContext(dctx, "tcp", key.Address())
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", key.Address(), err)
	}

	if tc, ok := raw.(*net.TCPConn); ok {
		// dead peers should be noticed within a minute
		_ = tc.SetKeepAliveConfig(net.KeepAliveConfig{
			Enable:   true,
			Idle:     30 * time.Second,
			Interval: 5 * time.Second,
			Count:    3,
		})
	}

	conn := raw
	if key.TLS() {
		tlsConn, err := p.handshake(ctx, key, raw)
		if err != nil {
			raw.Close()
			return nil, err
		}
		conn = tlsConn
	}

	c := &Conn{
		Conn:      conn,
		key:       key,
		br:        bufio.NewReader(conn),
		createdAt: time.Now(),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return nil, ErrClosed
	}
	p.open[key]++
	p.updateGaugesLocked(key)
	p.mu.Unlock()

	poolDials.WithLabelValues(key.String()).Inc()
	p.logger.Debug().Str("authority", key.String()).Msg("connection established")
	return c, nil
}

// handshake wraps raw in TLS with SNI from the key host.
func (p *Pool) handshake(ctx context.Context, key Key, raw net.Conn) (net.Conn, error) {
	tlsConf := p.cfg.TLSConfig
	if tlsConf == nil {
		tlsConf = &tls.Config{ServerName: key.Host}
	} else {
		tlsConf = tlsConf.Clone()
		if tlsConf.ServerName == "" {
			tlsConf.ServerName = key.Host
		}
	}

	tlsConn := tls.Client(raw, tlsConf)

	hctx := ctx
	if p.cfg.TLSHandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, p.cfg.TLSHandshakeTimeout)
		defer cancel()
	}
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		return nil, fmt.Errorf("tls handshake with %s: %w", key.Address(), err)
	}

	return tlsConn, nil
}

// Release returns a checked-out connection to the pool. Healthy connections
// go back on their key's idle stack and wake waiting acquirers; unhealthy
// ones are closed and their cap slot freed for a future dial.
func (p *Pool) Release(c *Conn, healthy bool) {
	if c == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.dropLocked(c, "closed")
		return
	}
	if !healthy {
		p.dropLocked(c, "unhealthy")
		return
	}

	c.lastIdleAt = time.Now()
	p.idle[c.key] = append(p.idle[c.key], c)
	p.updateGaugesLocked(c.key)
	p.broadcastLocked()
}

// reserveLocked claims a cap slot for a new connection to key.
func (p *Pool) reserveLocked(key Key) bool {
	if !p.semForLocked(key).TryAcquire(1) {
		return false
	}
	if p.total != nil && !p.total.TryAcquire(1) {
		p.sems[key].Release(1)
		return false
	}
	return true
}

// unreserveLocked gives back a claimed slot and wakes waiters.
func (p *Pool) unreserveLocked(key Key) {
	p.sems[key].Release(1)
	if p.total != nil {
		p.total.Release(1)
	}
	p.broadcastLocked()
}

// cancelReservation frees a slot claimed by checkout after a failed dial.
func (p *Pool) cancelReservation(key Key) {
	p.mu.Lock()
	p.unreserveLocked(key)
	p.mu.Unlock()
}

// dropLocked closes a connection and frees its cap slot.
func (p *Pool) dropLocked(c *Conn, reason string) {
	c.Conn.Close()
	p.open[c.key]--
	if p.open[c.key] <= 0 {
		delete(p.open, c.key)
	}
	p.unreserveLocked(c.key)
	poolEvictions.WithLabelValues(reason).Inc()
	p.updateGaugesLocked(c.key)
}

// broadcastLocked wakes every goroutine blocked in Acquire. Waiters loop
// back through checkout, so spurious wakeups are harmless.
func (p *Pool) broadcastLocked() {
	close(p.waiters)
	p.waiters = make(chan struct{})
}

func (p *Pool) semForLocked(key Key) *semaphore.Weighted {
	s, ok := p.sems[key]
	if !ok {
		s = semaphore.NewWeighted(int64(p.cfg.MaxPerKey))
		p.sems[key] = s
	}
	return s
}

func (p *Pool) updateGaugesLocked(key Key) {
	authority := key.String()
	poolConnsOpen.WithLabelValues(authority).Set(float64(p.open[key]))
	poolConnsIdle.WithLabelValues(authority).Set(float64(len(p.idle[key])))
}

// KeyStats counts connections for one authority.
type KeyStats struct {
	Open int
	Idle int
}

// Stats is a point-in-time snapshot of pool occupancy. Open counts
// established connections, idle and checked out alike.
type Stats struct {
	Open     int
	Idle     int
	InFlight int
	PerKey   map[Key]KeyStats
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{PerKey: make(map[Key]KeyStats, len(p.open))}
	for key, open := range p.open {
		ks := KeyStats{Open: open, Idle: len(p.idle[key])}
		st.PerKey[key] = ks
		st.Open += ks.Open
		st.Idle += ks.Idle
	}
	st.InFlight = st.Open - st.Idle
	return st
}

// Close stops the sweeper and closes every idle connection. Connections
// still checked out are closed as they come back through Release. Close is
// idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for key, stack := range p.idle {
		delete(p.idle, key)
		for _, c := range stack {
			p.dropLocked(c, "closed")
		}
	}
	p.broadcastLocked()
	p.mu.Unlock()

	close(p.stop)
	p.wg.Wait()
	p.logger.Info().Msg("connection pool closed")
}

func (p *Pool) sweep() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if n := p.evictExpired(); n > 0 {
				p.logger.Info().Int("evicted", n).Msg("idle connections swept")
			}
		}
	}
}

// evictExpired closes idle connections past IdleTimeout and reports how
// many were dropped.
func (p *Pool) evictExpired() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for key, stack := range p.idle {
		keep := stack[:0]
		var drop []*Conn
		for _, c := range stack {
			if c.expired(p.cfg.IdleTimeout) {
				drop = append(drop, c)
			} else {
				keep = append(keep, c)
			}
		}
		if len(keep) == 0 {
			delete(p.idle, key)
		} else {
			p.idle[key] = keep
		}
		for _, c := range drop {
			p.dropLocked(c, "idle_timeout")
		}
		evicted += len(drop)
	}
	return evicted
}
