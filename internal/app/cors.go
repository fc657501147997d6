package app

import (
	"net/url"
	"strings"
)

// originAllowed reports whether origin matches one of patterns. Patterns are
// hosts ("app.example.com"), wildcard subdomains ("*.example.com"), wildcard
// ports ("localhost:*") or full origins ("https://app.example.com").
func originAllowed(patterns []string, origin string) bool {
	host := extractOriginHost(origin)
	for _, pattern := range patterns {
		if matchOriginPattern(extractOriginHost(pattern), host) {
			return true
		}
	}
	return false
}

// extractOriginHost returns the lower-cased "host[:port]" part of an origin.
func extractOriginHost(origin string) string {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if !strings.Contains(origin, "://") {
		return origin
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

func matchOriginPattern(pattern, host string) bool {
	switch {
	case pattern == "" || host == "":
		return false
	case pattern == host:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(host, pattern[1:])
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(host, pattern[:len(pattern)-1])
	}
	return false
}
