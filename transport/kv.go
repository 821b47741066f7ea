package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maxpert/pcbc/cfg"
	"github.com/maxpert/pcbc/telemetry"
)

// AgentName identifies this client in HELLO
const AgentName = "pcbc/1.0"

var (
	// ErrClientClosed is returned by operations on a closed client
	ErrClientClosed = errors.New("client closed")

	// ErrNotBootstrapped is returned by operations before Bootstrap succeeds
	ErrNotBootstrapped = errors.New("client not bootstrapped")

	// ErrUnsupportedScheme is returned for connection strings the KV dialer cannot serve
	ErrUnsupportedScheme = errors.New("unsupported connection string scheme")
)

// KVConnector dials KV endpoints and returns memcached binary protocol clients
type KVConnector struct {
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	ClientID         string
	TLSConfig        *tls.Config
}

// NewKVConnector creates a connector from transport configuration
func NewKVConnector(c cfg.TransportConfiguration) *KVConnector {
	return &KVConnector{
		ConnectTimeout:   time.Duration(c.ConnectTimeoutMS) * time.Millisecond,
		OperationTimeout: time.Duration(c.OperationTimeoutMS) * time.Millisecond,
		ClientID:         c.ClientID,
		TLSConfig:        &tls.Config{InsecureSkipVerify: c.TLSSkipVerify},
	}
}

// Connect dials the first reachable endpoint of req.ConnString. The returned
// client still has to be bootstrapped.
func (k *KVConnector) Connect(ctx context.Context, req ConnectRequest) (Client, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("invalid connection kind %s", req.Kind)
	}

	cs, err := ParseConnString(req.ConnString)
	if err != nil {
		return nil, err
	}
	if cs.Scheme != "couchbase" && cs.Scheme != "couchbases" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, cs.Scheme)
	}

	bucket := ""
	if req.Kind == KindBucket {
		bucket = cs.Path
		if bucket == "" {
			bucket = "default"
		}
	}

	dialer := &net.Dialer{Timeout: k.ConnectTimeout}
	var lastErr error
	for _, addr := range cs.KVAddresses() {
		conn, err := k.dial(ctx, dialer, addr, cs.TLS())
		if err != nil {
			log.Debug().Err(err).Str("addr", addr).Msg("KV endpoint unreachable")
			lastErr = err
			continue
		}

		log.Debug().Str("addr", addr).Str("kind", req.Kind.String()).Msg("Connected to KV endpoint")
		return &kvClient{
			conn:      conn,
			addr:      addr,
			kind:      req.Kind,
			bucket:    bucket,
			username:  req.Username,
			password:  req.Password,
			clientID:  k.ClientID,
			opTimeout: k.OperationTimeout,
			callbacks: make(map[Operation]Callback),
		}, nil
	}

	return nil, fmt.Errorf("no KV endpoint reachable in %q: %w", req.ConnString, lastErr)
}

func (k *KVConnector) dial(ctx context.Context, dialer *net.Dialer, addr string, useTLS bool) (net.Conn, error) {
	if !useTLS {
		return dialer.DialContext(ctx, "tcp", addr)
	}

	tlsConfig := &tls.Config{}
	if k.TLSConfig != nil {
		tlsConfig = k.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			tlsConfig.ServerName = host
		}
	}
	td := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
	return td.DialContext(ctx, "tcp", addr)
}

// kvClient runs one request/response exchange at a time over a single connection
type kvClient struct {
	mu        sync.Mutex
	conn      net.Conn
	addr      string
	kind      Kind
	bucket    string
	username  string
	password  string
	clientID  string
	opTimeout time.Duration
	opaque    atomic.Uint32

	bootstrapped atomic.Bool
	closed       atomic.Bool

	callbacksMu sync.RWMutex
	callbacks   map[Operation]Callback
	features    []uint16
}

func (c *kvClient) BucketName() string {
	return c.bucket
}

func (c *kvClient) Bootstrapped() bool {
	return c.bootstrapped.Load() && !c.closed.Load()
}

func (c *kvClient) InstallCallback(op Operation, cb Callback) error {
	if int(op) >= len(operationNames) {
		return fmt.Errorf("unknown operation %s", op)
	}
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.callbacksMu.Lock()
	c.callbacks[op] = cb
	c.callbacksMu.Unlock()
	return nil
}

// Bootstrap negotiates features, authenticates, and selects the bucket
func (c *kvClient) Bootstrap(ctx context.Context) error {
	err := c.bootstrap(ctx)
	if err != nil {
		telemetry.TransportBootstrapTotal.With(c.kind.String(), "error").Inc()
		return err
	}

	c.bootstrapped.Store(true)
	telemetry.TransportBootstrapTotal.With(c.kind.String(), "ok").Inc()
	log.Debug().
		Str("addr", c.addr).
		Str("bucket", c.bucket).
		Interface("features", c.features).
		Msg("KV session bootstrapped")
	return nil
}

func (c *kvClient) bootstrap(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	agent, err := json.Marshal(struct {
		Agent string `json:"a"`
		ID    string `json:"i"`
	}{AgentName, c.clientID})
	if err != nil {
		return err
	}

	resp, err := c.roundTrip(ctx, &packet{
		Opcode: opHello,
		Key:    agent,
		Value:  encodeFeatures([]uint16{featureTCPNoDelay, featureXError, featureSelectBucket}),
	})
	if err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	c.features = decodeFeatures(resp.Value)

	if c.username != "" {
		auth := make([]byte, 0, len(c.username)+len(c.password)+2)
		auth = append(auth, 0)
		auth = append(auth, c.username...)
		auth = append(auth, 0)
		auth = append(auth, c.password...)

		if _, err := c.roundTrip(ctx, &packet{Opcode: opSASLAuth, Key: []byte("PLAIN"), Value: auth}); err != nil {
			return fmt.Errorf("sasl auth: %w", err)
		}
	}

	if c.kind == KindBucket {
		if _, err := c.roundTrip(ctx, &packet{Opcode: opSelectBucket, Key: []byte(c.bucket)}); err != nil {
			return fmt.Errorf("select bucket %q: %w", c.bucket, err)
		}
	}

	return nil
}

// Ping sends NOOP and delivers the outcome to the ping callback
func (c *kvClient) Ping(ctx context.Context) error {
	if !c.Bootstrapped() {
		if c.closed.Load() {
			return ErrClientClosed
		}
		return ErrNotBootstrapped
	}

	resp, err := c.roundTrip(ctx, &packet{Opcode: opNoop})
	r := &Response{Operation: OpPing, Err: err}
	if resp != nil {
		r.Opaque, r.Status, r.CAS = resp.Opaque, resp.Status, resp.CAS
	}
	c.dispatch(r)
	return err
}

func (c *kvClient) dispatch(resp *Response) {
	c.callbacksMu.RLock()
	cb := c.callbacks[resp.Operation]
	c.callbacksMu.RUnlock()

	if cb == nil {
		return
	}
	telemetry.TransportCallbacksTotal.With(resp.Operation.String()).Inc()
	cb(resp)
}

// roundTrip writes req and waits for the matching response. I/O failures leave
// the stream in an unknown state, so the client stops reporting itself usable.
func (c *kvClient) roundTrip(ctx context.Context, req *packet) (*packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	req.Magic = magicRequest
	req.Opaque = c.opaque.Add(1)

	var deadline time.Time
	if c.opTimeout > 0 {
		deadline = time.Now().Add(c.opTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.markBroken(err)
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := writePacket(c.conn, req); err != nil {
		c.markBroken(err)
		return nil, ctxErr(ctx, err)
	}

	resp, err := readPacket(c.conn)
	if err != nil {
		c.markBroken(err)
		return nil, ctxErr(ctx, err)
	}
	if resp.Magic != magicResponse || resp.Opcode != req.Opcode || resp.Opaque != req.Opaque {
		err := fmt.Errorf("unexpected response opcode=0x%02x opaque=%d for opcode=0x%02x opaque=%d",
			resp.Opcode, resp.Opaque, req.Opcode, req.Opaque)
		c.markBroken(err)
		return nil, err
	}
	if resp.Status != StatusSuccess {
		return resp, &StatusError{Opcode: resp.Opcode, Status: resp.Status, Message: string(resp.Value)}
	}

	return resp, nil
}

func (c *kvClient) markBroken(err error) {
	if c.bootstrapped.CompareAndSwap(true, false) {
		log.Warn().Err(err).Str("addr", c.addr).Msg("KV session broken")
	}
}

func (c *kvClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.bootstrapped.Store(false)
	return c.conn.Close()
}

func ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
