package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/pcbc/transport"
)

type fakeClient struct {
	req          transport.ConnectRequest
	bootErr      error
	callbackErr  error
	bootstrapped atomic.Bool
	closed       atomic.Bool

	mu        sync.Mutex
	callbacks map[transport.Operation]transport.Callback
}

func (c *fakeClient) BucketName() string {
	if c.req.Kind != transport.KindBucket {
		return ""
	}
	cs, err := transport.ParseConnString(c.req.ConnString)
	if err != nil || cs.Path == "" {
		return "default"
	}
	return cs.Path
}

func (c *fakeClient) Bootstrapped() bool { return c.bootstrapped.Load() && !c.closed.Load() }

func (c *fakeClient) InstallCallback(op transport.Operation, cb transport.Callback) error {
	if c.callbackErr != nil {
		return c.callbackErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callbacks == nil {
		c.callbacks = make(map[transport.Operation]transport.Callback)
	}
	c.callbacks[op] = cb
	return nil
}

func (c *fakeClient) Bootstrap(ctx context.Context) error {
	if c.bootErr != nil {
		return c.bootErr
	}
	c.bootstrapped.Store(true)
	return nil
}

func (c *fakeClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	cb := c.callbacks[transport.OpPing]
	c.mu.Unlock()
	if cb != nil {
		cb(&transport.Response{Operation: transport.OpPing})
	}
	return nil
}

func (c *fakeClient) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeClient) breakSession() { c.bootstrapped.Store(false) }

// fakeConnector records every client it creates
type fakeConnector struct {
	mu      sync.Mutex
	clients []*fakeClient
	delay   time.Duration
	gate    chan struct{}

	connectErr  error
	bootErr     error
	callbackErr error
}

func (f *fakeConnector) Connect(ctx context.Context, req transport.ConnectRequest) (transport.Client, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	c := &fakeClient{req: req, bootErr: f.bootErr, callbackErr: f.callbackErr}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeConnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeConnector) client(i int) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

func (f *fakeConnector) setError(connectErr, bootErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = connectErr
	f.bootErr = bootErr
}

var errRefused = errors.New("connection refused")
