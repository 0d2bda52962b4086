package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/volley/pkg/request"
)

const (
	// DefaultTTL is the fallback freshness lifetime when the response
	// carries neither a Cache-Control max-age nor a usable Expires header
	DefaultTTL = 5 * time.Minute
)

// Cacheable reports whether a response may be stored. Only complete 200
// responses without a prohibiting Cache-Control directive qualify.
func Cacheable(resp *request.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return false
	}

	cc := strings.ToLower(resp.Header.Get("Cache-Control"))
	for _, directive := range []string{"no-store", "no-cache", "private"} {
		if strings.Contains(cc, directive) {
			return false
		}
	}
	return true
}

// FromResponse converts a completed response to a cache Entry. Freshness
// comes from Cache-Control max-age when present, then the Expires header,
// then defaultTTL (DefaultTTL when defaultTTL is not positive).
func FromResponse(resp *request.Response, defaultTTL time.Duration) *Entry {
	if resp == nil {
		return nil
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	now := time.Now()
	return &Entry{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       resp.Body,
		CachedAt:   now,
		Expires:    expiresAt(resp.Header, now, defaultTTL),
	}
}

// Response rebuilds a response from the cached entry.
func (e *Entry) Response(url string) *request.Response {
	return &request.Response{
		StatusCode: e.StatusCode,
		Status:     e.Status,
		Header:     e.Header.Clone(),
		Body:       e.Body,
		URL:        url,
	}
}

// expiresAt derives the entry expiry from response headers.
func expiresAt(header http.Header, now time.Time, defaultTTL time.Duration) time.Time {
	if age, ok := maxAge(header.Get("Cache-Control")); ok {
		return now.Add(age)
	}

	if expiresStr := header.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil {
			if expires.Before(now) {
				// Already stale - Set skips entries without a positive TTL
				return now
			}
			return expires
		}
	}

	return now.Add(defaultTTL)
}

// maxAge extracts the max-age directive from a Cache-Control value.
func maxAge(cc string) (time.Duration, bool) {
	for _, directive := range strings.Split(cc, ",") {
		value, found := strings.CutPrefix(strings.TrimSpace(strings.ToLower(directive)), "max-age=")
		if !found {
			continue
		}
		secs, err := strconv.Atoi(value)
		if err != nil || secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}
