package http

import (
	"net/http"
	"strings"
)

// sanitizeInput removes control characters other than tab and newlines
// and trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// pathID returns the {id} wildcard of the matched route.
func pathID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}
