package pool

import (
	"sync"
	"time"

	"github.com/maxpert/pcbc/transport"
)

// Handle is a cached connection shared by every lease on its key
type Handle struct {
	key     Key
	client  transport.Client
	bucket  string
	created time.Time
	slot    *slot

	// idleMu orders idle LRU membership changes for this handle
	idleMu sync.Mutex

	mu        sync.Mutex
	refs      int
	idleSince time.Time
	closed    bool
}

// HandleInfo is a point-in-time view of a cached handle
type HandleInfo struct {
	Kind         string    `json:"kind"`
	ConnString   string    `json:"conn_string"`
	Username     string    `json:"username"`
	Bucket       string    `json:"bucket,omitempty"`
	Refs         int       `json:"refs"`
	Created      time.Time `json:"created"`
	IdleSince    time.Time `json:"idle_since,omitempty"`
	Bootstrapped bool      `json:"bootstrapped"`
}

// Key returns the cache key of the handle
func (h *Handle) Key() Key { return h.key }

// Client returns the underlying network client
func (h *Handle) Client() transport.Client { return h.client }

// BucketName is the bucket reported by the client after connect
func (h *Handle) BucketName() string { return h.bucket }

// Refs returns the current reference count
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

// IdleSince returns when refs last dropped to zero, or the zero time while in use
func (h *Handle) IdleSince() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.idleSince
}

func (h *Handle) retain() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.refs++
	h.idleSince = time.Time{}
	return true
}

// isIdle reports whether the handle is open and unreferenced
func (h *Handle) isIdle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed && h.refs == 0
}

// release drops one reference and reports whether the handle became idle
func (h *Handle) release(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.refs == 0 {
		return false
	}
	h.refs--
	if h.refs == 0 {
		h.idleSince = now
		return true
	}
	return false
}

// expire marks the handle closed if it has been idle for at least maxIdle
func (h *Handle) expire(now time.Time, maxIdle time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.refs > 0 || h.idleSince.IsZero() {
		return false
	}
	if now.Sub(h.idleSince) < maxIdle {
		return false
	}
	h.closed = true
	return true
}

// evictIdle marks the handle closed if nobody holds it
func (h *Handle) evictIdle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.refs > 0 {
		return false
	}
	h.closed = true
	return true
}

// invalidate marks the handle closed whatever its reference count
func (h *Handle) invalidate() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	return true
}

func (h *Handle) info() HandleInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HandleInfo{
		Kind:         h.key.Kind.String(),
		ConnString:   h.key.ConnString,
		Username:     h.key.Username,
		Bucket:       h.bucket,
		Refs:         h.refs,
		Created:      h.created,
		IdleSince:    h.idleSince,
		Bootstrapped: !h.closed && h.client.Bootstrapped(),
	}
}
