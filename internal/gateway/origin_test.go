package gateway

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://scanner.example.com"})

	tests := []struct {
		name    string
		origin  string
		host    string
		allowed bool
	}{
		{"no origin header", "", "api.example.com", true},
		{"same host", "https://api.example.com", "api.example.com", true},
		{"allow-listed origin", "https://scanner.example.com", "api.example.com", true},
		{"allow-listed origin trailing slash", "https://scanner.example.com/", "api.example.com", true},
		{"unlisted origin", "https://evil.example.com", "api.example.com", false},
		{"garbage origin", "://bad", "api.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://"+tt.host+"/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.allowed, check(r))
		})
	}
}

func TestOriginChecker_EmptyAllowListRestrictsToSameHost(t *testing.T) {
	check := originChecker(nil)

	r := httptest.NewRequest("GET", "http://api.example.com/ws", nil)
	r.Header.Set("Origin", "https://other.example.com")
	assert.False(t, check(r))

	r.Header.Set("Origin", "https://api.example.com")
	assert.True(t, check(r))
}
