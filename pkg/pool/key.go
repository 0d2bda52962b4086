package pool

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Key identifies a pool bucket. Connections are shared only between requests
// whose URLs agree on scheme, host, and port.
type Key struct {
	Scheme string
	Host   string
	Port   uint16
}

// KeyFromURL derives the pool key for u. The host is lowercased and missing
// ports default to 80 for http and 443 for https.
func KeyFromURL(u *url.URL) (Key, error) {
	scheme := strings.ToLower(u.Scheme)

	var port uint16
	switch scheme {
	case "http":
		port = 80
	case "https":
		port = 443
	default:
		return Key{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Key{}, fmt.Errorf("url %q has no host", u.String())
	}

	if p := u.Port(); p != "" {
		v, err := strconv.ParseUint(p, 10, 16)
		if err != nil || v == 0 {
			return Key{}, fmt.Errorf("invalid port %q in url %q", p, u.String())
		}
		port = uint16(v)
	}

	return Key{Scheme: scheme, Host: host, Port: port}, nil
}

// ParseKey derives a pool key from a raw URL string.
func ParseKey(rawURL string) (Key, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Key{}, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	return KeyFromURL(u)
}

// Address returns the host:port dial target.
func (k Key) Address() string {
	return net.JoinHostPort(k.Host, strconv.Itoa(int(k.Port)))
}

// String returns the canonical scheme://host:port form.
func (k Key) String() string {
	return k.Scheme + "://" + k.Address()
}

// TLS reports whether connections for this key carry a TLS handshake.
func (k Key) TLS() bool {
	return k.Scheme == "https"
}
