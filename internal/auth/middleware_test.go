package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireToken(t *testing.T) {
	const apiToken = "test-admin-token"

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		expectCode int
	}{
		{name: "no authorization header", authHeader: "", expectCode: http.StatusUnauthorized},
		{name: "malformed header", authHeader: "Bearer", expectCode: http.StatusUnauthorized},
		{name: "wrong scheme", authHeader: "Basic dXNlcjpwYXNz", expectCode: http.StatusUnauthorized},
		{name: "wrong token", authHeader: "Bearer not-the-token", expectCode: http.StatusUnauthorized},
		{name: "valid token", authHeader: "Bearer test-admin-token", expectCode: http.StatusOK},
		{name: "case-insensitive scheme", authHeader: "bearer test-admin-token", expectCode: http.StatusOK},
		{name: "extra whitespace", authHeader: "Bearer   test-admin-token", expectCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/contact", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()

			RequireToken(apiToken, okHandler).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectCode, rr.Code)
		})
	}
}

func TestTokenMatches(t *testing.T) {
	assert.True(t, TokenMatches("secret", "secret"))
	assert.False(t, TokenMatches("secret", "other"))
	assert.False(t, TokenMatches("", ""), "empty configured token must never match")
}
