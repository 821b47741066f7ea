package pool

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/maxpert/pcbc/transport"
)

// Normalize rewrites a connection string into the form used for cache keys.
//
// A bare host list gets the couchbase:// scheme. Bucket connections with a
// bucket name have their path replaced by that name; cluster connections have
// any path removed. Hosts, ports, and the query string are kept as written.
func Normalize(kind transport.Kind, connStr, bucketName string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: connection kind %s", ErrInvalidArgument, kind)
	}

	cs, err := transport.ParseConnString(connStr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if !cs.HasScheme {
		cs.Scheme = transport.DefaultScheme
	}

	switch kind {
	case transport.KindBucket:
		if bucketName != "" {
			cs.Path = bucketName
		}
	case transport.KindCluster:
		cs.Path = ""
	}

	normalized := cs.String()
	if normalized != connStr {
		log.Debug().Str("from", connStr).Str("to", normalized).Msg("Rewrote connection string")
	}
	return normalized, nil
}
