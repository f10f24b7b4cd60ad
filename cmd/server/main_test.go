package main

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioworks/mailroom/internal/config"
	"github.com/folioworks/mailroom/internal/testutil"
)

func testConfig() *config.Config {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return &config.Config{
		Environment:         "test",
		EncryptionKeyBase64: base64.StdEncoding.EncodeToString(key),
		APIToken:            "test-api-token",
		Port:                "0",
	}
}

func TestNewServerRoutes(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	server := NewServer(testConfig(), pool)

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mailroom API is running")

	// API routes require the bearer token.
	rec = get("/contact", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get("/contact", "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get("/contact", "test-api-token")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/contact/sent", "test-api-token")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get("/contact/email-config", "test-api-token")
	assert.Equal(t, http.StatusOK, rec.Code)
}
