// Package pool keeps one shared, reference-counted network client per
// (kind, normalized connection string, credentials) and retires clients that
// have been idle for too long.
//
// Concurrent misses on one key are collapsed: the first caller connects and
// every other caller waits for its outcome. Idle handles are destroyed by Sweep,
// either called by the owner after each unit of work or by a Janitor.
package pool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jizhuozhi/go-future"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/pcbc/telemetry"
	"github.com/maxpert/pcbc/transport"
)

// Options configures a Cache
type Options struct {
	Connector transport.Connector

	// MaxIdleConnections caps idle handles; the least recently released one is
	// destroyed when the cap is exceeded. 0 means unlimited.
	MaxIdleConnections int

	// BootstrapTimeout bounds connect plus bootstrap of a new client. 0 means no limit.
	BootstrapTimeout time.Duration

	Clock Clock

	// OnResponse receives responses delivered to the callbacks installed on new clients
	OnResponse func(key Key, resp *transport.Response)
}

// Request identifies the connection a caller wants
type Request struct {
	Kind       transport.Kind
	ConnString string
	BucketName string
	Username   string
	Password   string
}

// slot is the table entry for one key. handle is set once the connecting
// goroutine succeeds; waiters read the outcome from fut.
type slot struct {
	fut    *future.Future[*Handle]
	handle atomic.Pointer[Handle]
}

// wait blocks until the connect for s resolves or ctx is done
func (s *slot) wait(ctx context.Context) (*Handle, error) {
	if s.fut.Done() {
		return s.fut.Get()
	}

	done := make(chan struct{})
	s.fut.Subscribe(func(*Handle, error) { close(done) })

	select {
	case <-done:
		return s.fut.Get()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cache is a table of shared connection handles
type Cache struct {
	connector        transport.Connector
	clock            Clock
	bootstrapTimeout time.Duration
	onResponse       func(Key, *transport.Response)

	table  *xsync.MapOf[Key, *slot]
	idle   *lru.Cache[Key, *Handle]
	closed atomic.Bool
}

// New creates a Cache
func New(opts Options) (*Cache, error) {
	if opts.Connector == nil {
		return nil, fmt.Errorf("%w: nil connector", ErrInvalidArgument)
	}
	if opts.MaxIdleConnections < 0 {
		return nil, fmt.Errorf("%w: max idle connections %d", ErrInvalidArgument, opts.MaxIdleConnections)
	}

	c := &Cache{
		connector:        opts.Connector,
		clock:            opts.Clock,
		bootstrapTimeout: opts.BootstrapTimeout,
		onResponse:       opts.OnResponse,
		table:            xsync.NewMapOf[Key, *slot](),
	}
	if c.clock == nil {
		c.clock = RealClock{}
	}

	if opts.MaxIdleConnections > 0 {
		idle, err := lru.NewWithEvict[Key, *Handle](opts.MaxIdleConnections, c.onIdleEvicted)
		if err != nil {
			return nil, err
		}
		c.idle = idle
	}

	return c, nil
}

// Acquire returns a lease on the shared handle for req, connecting on a miss.
// A cached handle whose client is no longer bootstrapped is destroyed and
// replaced. Connection failures are returned as *TransportError and leave
// nothing cached.
func (c *Cache) Acquire(ctx context.Context, req Request) (*Lease, error) {
	normalized, err := Normalize(req.Kind, req.ConnString, req.BucketName)
	if err != nil {
		telemetry.PoolAcquireTotal.With("error").Inc()
		return nil, err
	}
	key := NewKey(req.Kind, normalized, req.Username, req.Password)

	for {
		if c.closed.Load() {
			return nil, ErrCacheClosed
		}

		var promise *future.Promise[*Handle]
		s, loaded := c.table.LoadOrCompute(key, func() *slot {
			promise = future.NewPromise[*Handle]()
			return &slot{fut: promise.Future()}
		})

		if !loaded {
			h, err := c.connect(ctx, key, s, req)
			if err != nil {
				c.removeSlot(key, s)
				promise.Set(nil, err)
				telemetry.PoolAcquireTotal.With("error").Inc()
				return nil, err
			}
			s.handle.Store(h)
			promise.Set(h, nil)

			if c.closed.Load() {
				c.discard(h, "close")
				return nil, ErrCacheClosed
			}

			telemetry.PoolAcquireTotal.With("miss").Inc()
			log.Info().Str("key", key.String()).Str("bucket", h.bucket).Msg("Connection established and cached")
			return newLease(c, h), nil
		}

		inFlight := s.handle.Load() == nil
		h, err := s.wait(ctx)
		if err != nil {
			// Either our ctx ended or another caller's connect failed and its error is shared
			telemetry.PoolAcquireTotal.With("error").Inc()
			return nil, err
		}

		if !h.client.Bootstrapped() {
			log.Warn().Str("key", key.String()).Msg("Cached connection is not usable, reconnecting")
			c.discard(h, "broken")
			continue
		}

		if !c.retain(h) {
			// Destroyed between lookup and retain; drop the stale slot and retry
			c.removeSlot(key, s)
			continue
		}

		if inFlight {
			telemetry.PoolAcquireTotal.With("shared").Inc()
		} else {
			telemetry.PoolAcquireTotal.With("hit").Inc()
		}
		log.Debug().Str("key", key.String()).Int("refs", h.Refs()).Msg("Connection fetched from cache")
		return newLease(c, h), nil
	}
}

func (c *Cache) connect(ctx context.Context, key Key, s *slot, req Request) (*Handle, error) {
	start := c.clock.Now()

	if c.bootstrapTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.bootstrapTimeout)
		defer cancel()
	}

	client, err := c.connector.Connect(ctx, transport.ConnectRequest{
		Kind:       req.Kind,
		ConnString: key.ConnString,
		Username:   req.Username,
		Password:   req.Password,
	})
	if err != nil {
		log.Error().Err(err).Str("conn_string", key.ConnString).Msg("Failed to connect")
		return nil, &TransportError{Stage: "connect", ConnString: key.ConnString, Err: err}
	}

	for _, op := range transport.Operations() {
		if err := client.InstallCallback(op, c.callbackFor(key)); err != nil {
			client.Close()
			log.Error().Err(err).Str("operation", op.String()).Msg("Failed to install callback")
			return nil, &TransportError{Stage: "install_callback", ConnString: key.ConnString, Err: err}
		}
	}

	if err := client.Bootstrap(ctx); err != nil {
		client.Close()
		log.Error().Err(err).Str("conn_string", key.ConnString).Msg("Failed to bootstrap connection")
		return nil, &TransportError{Stage: "bootstrap", ConnString: key.ConnString, Err: err}
	}

	now := c.clock.Now()
	telemetry.PoolConnectSeconds.Observe(now.Sub(start).Seconds())

	return &Handle{
		key:     key,
		client:  client,
		bucket:  client.BucketName(),
		created: now,
		slot:    s,
		refs:    1,
	}, nil
}

func (c *Cache) callbackFor(key Key) transport.Callback {
	return func(resp *transport.Response) {
		if c.onResponse != nil {
			c.onResponse(key, resp)
			return
		}
		log.Debug().
			Str("key", key.String()).
			Str("operation", resp.Operation.String()).
			Uint16("status", resp.Status).
			Err(resp.Err).
			Msg("Response received")
	}
}

// Release returns the lease's reference. It is the same as lease.Release().
func (c *Cache) Release(lease *Lease) {
	lease.Release()
}

func (c *Cache) release(h *Handle) {
	if !h.release(c.clock.Now()) {
		return
	}
	log.Debug().Str("key", h.key.String()).Msg("Connection is idle")
	c.trackIdle(h)
}

// retain takes a reference on h and drops it from the idle list. Holding
// h.idleMu across both keeps a late trackIdle from listing a handle in use.
func (c *Cache) retain(h *Handle) bool {
	h.idleMu.Lock()
	defer h.idleMu.Unlock()
	if !h.retain() {
		return false
	}
	c.forgetIdle(h)
	return true
}

// trackIdle lists h in the idle LRU if nobody has retained it since it went idle.
// Adding may evict the least recently released handle through onIdleEvicted.
func (c *Cache) trackIdle(h *Handle) {
	if c.idle == nil {
		return
	}
	h.idleMu.Lock()
	defer h.idleMu.Unlock()
	if h.isIdle() {
		c.idle.Add(h.key, h)
	}
}

// forgetIdle removes h, and only h, from the idle LRU
func (c *Cache) forgetIdle(h *Handle) {
	if c.idle == nil {
		return
	}
	if cached, ok := c.idle.Peek(h.key); ok && cached == h {
		c.idle.Remove(h.key)
	}
}

// Sweep destroys handles that nobody holds and that have been idle for at
// least maxIdle. It returns the number of destroyed handles.
func (c *Cache) Sweep(maxIdle time.Duration) int {
	now := c.clock.Now()
	destroyed := 0

	c.table.Range(func(key Key, s *slot) bool {
		h := s.handle.Load()
		if h == nil || !h.expire(now, maxIdle) {
			return true
		}
		c.removeSlot(key, s)
		c.destroy(h, "idle")
		destroyed++
		return true
	})

	telemetry.PoolSweepsTotal.Inc()
	if destroyed > 0 {
		log.Info().Int("destroyed", destroyed).Dur("max_idle", maxIdle).Msg("Swept idle connections")
	}
	return destroyed
}

// Close destroys every cached handle. Leases still held become no-ops.
func (c *Cache) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.table.Range(func(key Key, s *slot) bool {
		if h := s.handle.Load(); h != nil {
			c.discard(h, "close")
		}
		return true
	})
	if c.idle != nil {
		c.idle.Purge()
	}
	log.Info().Msg("Connection cache closed")
}

// Snapshot returns the state of every established handle
func (c *Cache) Snapshot() []HandleInfo {
	infos := make([]HandleInfo, 0, c.table.Size())
	c.table.Range(func(_ Key, s *slot) bool {
		if h := s.handle.Load(); h != nil {
			infos = append(infos, h.info())
		}
		return true
	})
	return infos
}

// Counts returns how many established handles are in use and idle
func (c *Cache) Counts() (busy, idle int) {
	c.table.Range(func(_ Key, s *slot) bool {
		h := s.handle.Load()
		if h == nil {
			return true
		}
		if h.Refs() > 0 {
			busy++
		} else {
			idle++
		}
		return true
	})
	return busy, idle
}

// Len returns the number of table entries, including connects in flight
func (c *Cache) Len() int {
	return c.table.Size()
}

func (c *Cache) onIdleEvicted(key Key, h *Handle) {
	if !h.evictIdle() {
		return
	}
	c.removeSlot(key, h.slot)
	c.destroy(h, "lru")
}

// discard invalidates h regardless of its references and destroys it
func (c *Cache) discard(h *Handle, reason string) {
	if !h.invalidate() {
		c.removeSlot(h.key, h.slot)
		return
	}
	c.removeSlot(h.key, h.slot)
	c.destroy(h, reason)
}

// removeSlot deletes key only while it still maps to s
func (c *Cache) removeSlot(key Key, s *slot) {
	c.table.Compute(key, func(old *slot, loaded bool) (*slot, bool) {
		if !loaded {
			return nil, true
		}
		return old, old == s
	})
}

// destroy closes the client of a handle already marked closed
func (c *Cache) destroy(h *Handle, reason string) {
	if reason != "lru" {
		c.forgetIdle(h)
	}
	if err := h.client.Close(); err != nil {
		log.Warn().Err(err).Str("key", h.key.String()).Msg("Failed to close connection")
	}
	telemetry.PoolEvictionsTotal.With(reason).Inc()
	log.Info().Str("key", h.key.String()).Str("reason", reason).Msg("Connection destroyed")
}
