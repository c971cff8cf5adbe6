package engine

import (
	"net/url"
	"strings"
)

// allowedURL reports whether a URL passes the domain blacklist and scheme
// checks the worker loop applies before scraping or enqueuing it.
// Blacklist entries match by substring against the host, mirroring the
// source crawler's domain-blacklist semantics (a blacklist entry "e.com"
// also excludes "sub.e.com").
func allowedURL(rawURL string, blacklist []string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, entry := range blacklist {
		if entry == "" {
			continue
		}
		if strings.Contains(host, strings.ToLower(entry)) {
			return false
		}
	}
	return true
}
