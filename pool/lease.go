package pool

import (
	"sync/atomic"

	"github.com/maxpert/pcbc/transport"
)

// Lease is one caller's reference to a shared handle. Release it exactly once
// when the unit of work is done; further calls are no-ops.
type Lease struct {
	cache    *Cache
	handle   *Handle
	released atomic.Bool
}

func newLease(c *Cache, h *Handle) *Lease {
	return &Lease{cache: c, handle: h}
}

// Handle returns the shared handle
func (l *Lease) Handle() *Handle { return l.handle }

// Client returns the shared network client
func (l *Lease) Client() transport.Client { return l.handle.client }

// BucketName returns the bucket the client is bound to, empty for cluster connections
func (l *Lease) BucketName() string { return l.handle.bucket }

// Release returns the reference held by the lease
func (l *Lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	l.cache.release(l.handle)
}
