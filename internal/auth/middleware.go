package auth

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// RequireToken middleware checks for a valid bearer token in the Authorization
// header. The mailroom API has a single admin identity, so authentication is a
// constant-time comparison against the configured token. Returns 401
// Unauthorized if authentication fails.
func RequireToken(apiToken string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			log.Println("Auth: Missing or malformed Authorization header")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if !TokenMatches(apiToken, token) {
			log.Println("Auth: Invalid token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the bearer token from the Authorization header.
// The Bearer scheme is matched case-insensitively per RFC 7235, and extra
// whitespace is tolerated.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	fields := strings.Fields(authHeader)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(strings.Join(fields[1:], " "))
	if token == "" {
		return "", false
	}

	return token, true
}

// TokenMatches compares a presented token against the configured one without
// leaking timing information.
func TokenMatches(configured, presented string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
