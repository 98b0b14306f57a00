package middleware

import (
	"net/http"
	"strings"
)

// ClientID derives the rate-limit identity for a request. Authenticated
// callers are keyed by a credential prefix so one key shares a budget across
// hosts; anonymous callers fall back to connection metadata.
func ClientID(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		prefix := auth
		if len(prefix) > 20 {
			prefix = prefix[:20]
		}

		return "auth:" + prefix
	}

	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return "ip:" + ip
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return "ip:" + first
		}
	}

	return "anonymous"
}
