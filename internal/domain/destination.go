package domain

import (
	"net/url"
	"strings"
)

// NormalizeDestination lower-cases a domain or app identifier and drops a
// leading "www.".
func NormalizeDestination(destination string) string {
	d := strings.ToLower(strings.TrimSpace(destination))
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

// NormalizeURL strips the fragment so in-page anchors match the same lock.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		if i := strings.IndexByte(trimmed, '#'); i >= 0 {
			return trimmed[:i]
		}
		return trimmed
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String()
}
