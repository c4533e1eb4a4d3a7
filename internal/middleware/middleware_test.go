package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhil/teamhub/internal/auth"
	"github.com/nikhil/teamhub/internal/logger"
)

const testSecret = "middleware-test-secret"

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestAuth(t *testing.T) {
	verifier, err := auth.NewJWTVerifier(testSecret)
	require.NoError(t, err)

	var seen auth.Identity
	handler := Auth(verifier, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Missing auth token", decodeError(t, rec))
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid token", decodeError(t, rec))
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := auth.IssueToken(testSecret, 42, "dev@example.com", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, int64(42), seen.UserID)
		assert.Equal(t, "dev@example.com", seen.Email)
	})
}

func TestRequestID(t *testing.T) {
	var fromCtx string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx, _ = r.Context().Value(logger.RequestIDKey).(string)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rec.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, fromCtx)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", fromCtx)
}

func TestResponseWrapperSetsJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	ResponseWrapperMiddleware(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRateLimiterPerUser(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2, logger.NewNop())
	router := mux.NewRouter()
	router.HandleFunc("/limited", okHandler)
	router.Use(limiter.Middleware())

	call := func(userID int64) int {
		req := httptest.NewRequest(http.MethodPost, "/limited", nil)
		req = req.WithContext(auth.NewContext(context.Background(), auth.Identity{UserID: userID}))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call(1))
	assert.Equal(t, http.StatusOK, call(1))
	assert.Equal(t, http.StatusTooManyRequests, call(1))
	// Buckets are independent per user.
	assert.Equal(t, http.StatusOK, call(2))
}

func TestRateLimiterDropsIdleBuckets(t *testing.T) {
	limiter := NewRateLimiter(1, 1, logger.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.allow("user:1"))
	assert.True(t, limiter.allow("user:2"))
	assert.Len(t, limiter.buckets, 2)

	now = now.Add(idleTTL + time.Minute)
	assert.True(t, limiter.allow("user:3"))
	assert.Len(t, limiter.buckets, 1)
	assert.Contains(t, limiter.buckets, "user:3")

	// A slow bucket lives until it would have refilled.
	slow := NewRateLimiter(0.001, 2, logger.NewNop())
	assert.InDelta(t, float64(2000*time.Second), float64(slow.idle), float64(time.Millisecond))
}

func TestRateLimiterDisabled(t *testing.T) {
	handler := NewRateLimiter(0, 1, logger.NewNop()).Middleware()(http.HandlerFunc(okHandler))
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMetricsRecordsStatus(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics)
	router.HandleFunc("/teams/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teams/7", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
