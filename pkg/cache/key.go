package cache

import (
	"fmt"
	"strings"
)

// keyPrefix namespaces all cache entries in Redis. The version segment
// invalidates the whole cache when the entry format changes.
const keyPrefix = "volley:cache:v1:"

// Key identifies a cached response. The HTTP method and the full request
// URL (including the encoded query string) together determine the entry.
type Key struct {
	// Method is the HTTP method (e.g. "GET")
	Method string

	// URL is the full request URL including the query string
	URL string
}

// String generates the deterministic Redis key string.
// Format: volley:cache:v1:METHOD:url
//
// Example:
//
//	volley:cache:v1:GET:https://api.example.com/items?page=1
func (k Key) String() string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, strings.ToUpper(k.Method), k.URL)
}
