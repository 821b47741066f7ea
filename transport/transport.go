// Package transport defines the network client the connection cache manages and
// provides a memcached binary protocol implementation that bootstraps KV sessions.
package transport

import (
	"context"
	"fmt"
)

// Kind selects the addressing mode of a connection
type Kind uint8

const (
	KindCluster Kind = 1
	KindBucket  Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindCluster:
		return "cluster"
	case KindBucket:
		return "bucket"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is Cluster or Bucket
func (k Kind) Valid() bool {
	return k == KindCluster || k == KindBucket
}

// ParseKind converts "cluster" or "bucket" into a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "cluster":
		return KindCluster, nil
	case "bucket":
		return KindBucket, nil
	default:
		return 0, fmt.Errorf("unknown connection kind %q", s)
	}
}

// Operation identifies a response stream a client can deliver to a callback
type Operation uint8

const (
	OpGet Operation = iota
	OpGetReplica
	OpExists
	OpStore
	OpUnlock
	OpRemove
	OpTouch
	OpCounter
	OpSubdocLookup
	OpSubdocMutate
	OpHTTP
	OpPing
	OpDiagnostics
)

var operationNames = [...]string{
	OpGet:          "get",
	OpGetReplica:   "get_replica",
	OpExists:       "exists",
	OpStore:        "store",
	OpUnlock:       "unlock",
	OpRemove:       "remove",
	OpTouch:        "touch",
	OpCounter:      "counter",
	OpSubdocLookup: "subdoc_lookup",
	OpSubdocMutate: "subdoc_mutate",
	OpHTTP:         "http",
	OpPing:         "ping",
	OpDiagnostics:  "diagnostics",
}

func (o Operation) String() string {
	if int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("operation(%d)", uint8(o))
}

// Operations lists every operation a new client gets a callback for
func Operations() []Operation {
	ops := make([]Operation, len(operationNames))
	for i := range ops {
		ops[i] = Operation(i)
	}
	return ops
}

// Response is delivered to the callback installed for its operation
type Response struct {
	Operation Operation
	Opaque    uint32
	Status    uint16
	Key       []byte
	Value     []byte
	CAS       uint64
	Err       error
}

// Callback receives responses for one operation
type Callback func(resp *Response)

// ConnectRequest describes a connection to establish. ConnString is already normalized.
type ConnectRequest struct {
	Kind       Kind
	ConnString string
	Username   string
	Password   string
}

// Client is a single network session
type Client interface {
	// BucketName is the bucket the session is bound to, empty for cluster connections
	BucketName() string

	// Bootstrapped reports whether the session completed bootstrap and is still usable
	Bootstrapped() bool

	InstallCallback(op Operation, cb Callback) error

	// Bootstrap blocks until the session is ready or fails
	Bootstrap(ctx context.Context) error

	Ping(ctx context.Context) error

	Close() error
}

// Connector creates clients
type Connector interface {
	Connect(ctx context.Context, req ConnectRequest) (Client, error)
}

// ConnectorFunc adapts a function to Connector
type ConnectorFunc func(ctx context.Context, req ConnectRequest) (Client, error)

func (f ConnectorFunc) Connect(ctx context.Context, req ConnectRequest) (Client, error) {
	return f(ctx, req)
}
