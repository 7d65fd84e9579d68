package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgate/docgate/internal/core/invoker"
)

func TestRequestIDKeepsCallerID(t *testing.T) {
	var seen, forwarded string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		forwarded = invoker.RequestIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", nil)
	req.Header.Set(RequestIDHeader, "batch-42.doc-7")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "batch-42.doc-7", seen)
	assert.Equal(t, "batch-42.doc-7", forwarded)
	assert.Equal(t, "batch-42.doc-7", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesMalformedID(t *testing.T) {
	for name, id := range map[string]string{
		"empty":    "",
		"spaces":   "two words",
		"control":  "id\x01",
		"too long": strings.Repeat("a", maxRequestIDLength+1),
	} {
		t.Run(name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if id != "" {
				req.Header.Set(RequestIDHeader, id)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			_, err := uuid.Parse(seen)
			require.NoError(t, err)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
		})
	}
}
