package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnString(t *testing.T) {
	tests := []struct {
		in        string
		scheme    string
		hosts     []Endpoint
		path      string
		query     string
		hasScheme bool
	}{
		{"couchbase://127.0.0.1", "couchbase", []Endpoint{{Host: "127.0.0.1"}}, "", "", true},
		{"127.0.0.1", "", []Endpoint{{Host: "127.0.0.1"}}, "", "", false},
		{"couchbase://h1,h2:11210/default?timeout=5", "couchbase", []Endpoint{{Host: "h1"}, {Host: "h2", Port: 11210}}, "default", "timeout=5", true},
		{"couchbases://db.example.com:18091;db2.example.com", "couchbases", []Endpoint{{Host: "db.example.com", Port: 18091}, {Host: "db2.example.com"}}, "", "", true},
		{"couchbase://[::1]:11210/b", "couchbase", []Endpoint{{Host: "::1", Port: 11210}}, "b", "", true},
		{"localhost/beer-sample", "", []Endpoint{{Host: "localhost"}}, "beer-sample", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			cs, err := ParseConnString(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.scheme, cs.Scheme)
			assert.Equal(t, tc.hosts, cs.Endpoints)
			assert.Equal(t, tc.path, cs.Path)
			assert.Equal(t, tc.query, cs.Query)
			assert.Equal(t, tc.hasScheme, cs.HasScheme)
			assert.Equal(t, tc.in, cs.String())
		})
	}
}

func TestParseConnString_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"couchbase://",
		"couchbase:///default",
		"1couchbase://host",
		"couch base://host",
		"couchbase://host:port",
		"couchbase://host:0",
		"couchbase://host:70000",
		"couchbase://host:",
		"couchbase://::1",
		"couchbase://[::1",
		"couchbase://user@host",
		",,,",
		"host\n",
	} {
		_, err := ParseConnString(in)
		assert.ErrorIs(t, err, ErrMalformedConnString, "input %q", in)
	}
}

func TestConnString_KVAddresses(t *testing.T) {
	cs, err := ParseConnString("couchbase://a,b:12000,[fe80::1]")
	require.NoError(t, err)
	assert.False(t, cs.TLS())
	assert.Equal(t, []string{"a:11210", "b:12000", "[fe80::1]:11210"}, cs.KVAddresses())

	cs, err = ParseConnString("couchbases://secure")
	require.NoError(t, err)
	assert.True(t, cs.TLS())
	assert.Equal(t, []string{"secure:11207"}, cs.KVAddresses())
}

func TestKind(t *testing.T) {
	assert.True(t, KindCluster.Valid())
	assert.True(t, KindBucket.Valid())
	assert.False(t, Kind(0).Valid())
	assert.Equal(t, "bucket", KindBucket.String())

	k, err := ParseKind("cluster")
	require.NoError(t, err)
	assert.Equal(t, KindCluster, k)

	_, err = ParseKind("view")
	assert.Error(t, err)
}

func TestOperations(t *testing.T) {
	ops := Operations()
	require.Len(t, ops, 13)

	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.String()
	}
	assert.Equal(t, []string{
		"get", "get_replica", "exists", "store", "unlock", "remove", "touch",
		"counter", "subdoc_lookup", "subdoc_mutate", "http", "ping", "diagnostics",
	}, names)
	assert.Equal(t, "operation(99)", Operation(99).String())
}
