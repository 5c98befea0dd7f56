package adapters

import "strings"

// NormalizeHost strips a URL scheme, credentials, path and query from a
// configured host so "https://db.example.com/app" becomes "db.example.com".
// A port embedded in the host is kept.
func NormalizeHost(host string) string {
	h := strings.TrimSpace(host)
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.LastIndex(h, "@"); i >= 0 && !strings.Contains(h[:i], "/") {
		h = h[i+1:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	return h
}
