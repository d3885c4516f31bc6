// Package normalize canonicalizes the relay URLs the Relay Pool is
// configured with.
package normalize

import "strings"

// URL lowercases the scheme+host, strips a trailing slash, and defaults
// to wss:// when no scheme is given.
func URL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return u
	}
	if !strings.Contains(u, "://") {
		u = "wss://" + u
	}
	u = strings.TrimRight(u, "/")
	if i := strings.Index(u, "://"); i >= 0 {
		end := len(u)
		if j := strings.IndexByte(u[i+3:], '/'); j >= 0 {
			end = i + 3 + j
		}
		u = strings.ToLower(u[:end]) + u[end:]
	}
	return u
}
