package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultScheme is prepended to connection strings that only list hosts
const DefaultScheme = "couchbase"

// Default KV ports
const (
	DefaultKVPort    = 11210
	DefaultKVTLSPort = 11207
)

// ErrMalformedConnString is returned when a connection string cannot be parsed
var ErrMalformedConnString = errors.New("malformed connection string")

// Endpoint is one host of a connection string. Port is 0 when not given.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	host := e.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if e.Port == 0 {
		return host
	}
	return host + ":" + strconv.Itoa(e.Port)
}

// ConnString is a parsed scheme://hosts/path?query connection string.
// HostList keeps the host section exactly as written.
type ConnString struct {
	Scheme    string
	HostList  string
	Endpoints []Endpoint
	Path      string
	Query     string
	HasScheme bool
}

// ParseConnString splits s into its sections. A string without "://" is
// treated as a bare host list.
func ParseConnString(s string) (*ConnString, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedConnString)
	}
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			return nil, fmt.Errorf("%w: control or space character in %q", ErrMalformedConnString, s)
		}
	}

	cs := &ConnString{}
	rest := s
	if i := strings.Index(s, "://"); i >= 0 {
		cs.Scheme = s[:i]
		cs.HasScheme = true
		rest = s[i+3:]
		if !validScheme(cs.Scheme) {
			return nil, fmt.Errorf("%w: invalid scheme %q", ErrMalformedConnString, cs.Scheme)
		}
	}

	if i := strings.IndexByte(rest, '?'); i >= 0 {
		cs.Query = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		cs.Path = rest[i+1:]
		rest = rest[:i]
	}
	cs.HostList = rest

	if cs.HostList == "" {
		return nil, fmt.Errorf("%w: no hosts in %q", ErrMalformedConnString, s)
	}
	for _, h := range strings.FieldsFunc(cs.HostList, func(r rune) bool { return r == ',' || r == ';' }) {
		ep, err := parseEndpoint(h)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedConnString, err)
		}
		cs.Endpoints = append(cs.Endpoints, ep)
	}
	if len(cs.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: no hosts in %q", ErrMalformedConnString, s)
	}

	return cs, nil
}

// String reassembles the connection string
func (cs *ConnString) String() string {
	var b strings.Builder
	if cs.Scheme != "" {
		b.WriteString(cs.Scheme)
		b.WriteString("://")
	}
	b.WriteString(cs.HostList)
	if cs.Path != "" {
		b.WriteByte('/')
		b.WriteString(cs.Path)
	}
	if cs.Query != "" {
		b.WriteByte('?')
		b.WriteString(cs.Query)
	}
	return b.String()
}

// TLS reports whether the scheme asks for an encrypted transport
func (cs *ConnString) TLS() bool {
	return cs.Scheme == "couchbases"
}

// KVAddresses returns host:port dial addresses with default ports filled in
func (cs *ConnString) KVAddresses() []string {
	port := DefaultKVPort
	if cs.TLS() {
		port = DefaultKVTLSPort
	}

	addrs := make([]string, 0, len(cs.Endpoints))
	for _, ep := range cs.Endpoints {
		if ep.Port == 0 {
			ep.Port = port
		}
		addrs = append(addrs, ep.String())
	}
	return addrs
}

func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func parseEndpoint(h string) (Endpoint, error) {
	host, portStr := h, ""

	if strings.HasPrefix(h, "[") {
		end := strings.IndexByte(h, ']')
		if end < 0 {
			return Endpoint{}, fmt.Errorf("unterminated IPv6 literal %q", h)
		}
		host = h[1:end]
		tail := h[end+1:]
		if tail != "" {
			if tail[0] != ':' {
				return Endpoint{}, fmt.Errorf("unexpected %q after IPv6 literal", tail)
			}
			portStr = tail[1:]
		}
	} else if i := strings.LastIndexByte(h, ':'); i >= 0 {
		host, portStr = h[:i], h[i+1:]
		if strings.Contains(host, ":") {
			return Endpoint{}, fmt.Errorf("IPv6 host %q must be bracketed", h)
		}
	}

	if host == "" {
		return Endpoint{}, fmt.Errorf("empty host in %q", h)
	}
	if strings.ContainsAny(host, "/?#@[]") {
		return Endpoint{}, fmt.Errorf("invalid host %q", host)
	}

	ep := Endpoint{Host: host}
	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, fmt.Errorf("invalid port %q", portStr)
		}
		ep.Port = port
	} else if strings.HasSuffix(h, ":") {
		return Endpoint{}, fmt.Errorf("empty port in %q", h)
	}
	return ep, nil
}
