package pool

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/maxpert/pcbc/transport"
)

// Key identifies a shared connection. Credential is a fingerprint of the password,
// so callers using the same username with different passwords never share a handle.
type Key struct {
	Kind       transport.Kind
	ConnString string
	Username   string
	Credential uint64
}

// NewKey builds a key from an already normalized connection string
func NewKey(kind transport.Kind, normalized, username, password string) Key {
	return Key{
		Kind:       kind,
		ConnString: normalized,
		Username:   username,
		Credential: xxhash.Sum64String(username + "\x00" + password),
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%016x", k.Kind, k.ConnString, k.Username, k.Credential)
}
