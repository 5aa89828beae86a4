package gateway

import (
	"net/http"
	"net/url"
	"strings"
)

// originChecker builds the upgrader's CheckOrigin function. Requests without
// an Origin header (non-browser clients) are always allowed. Browser requests
// must either be same-host or match the allow-list; an empty allow-list
// restricts browsers to same-host.
func originChecker(allowed []string) func(r *http.Request) bool {
	normalized := make([]string, 0, len(allowed))
	for _, origin := range allowed {
		normalized = append(normalized, strings.ToLower(strings.TrimRight(origin, "/")))
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(parsed.Host, r.Host) {
			return true
		}

		candidate := strings.ToLower(strings.TrimRight(origin, "/"))
		for _, allowedOrigin := range normalized {
			if candidate == allowedOrigin {
				return true
			}
		}
		return false
	}
}
