package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	ok, left := l.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 1, left)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok, "bucket empty")

	ok, _ = l.Allow("b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, left = l.Allow("a")
	assert.True(t, ok)
	assert.Equal(t, 1, left, "refill is capped at capacity")
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok)

	now = now.Add(time.Hour)
	assert.Equal(t, 2, l.Sweep(time.Minute))
}

func TestMiddlewareChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewTokenBucket(1, 1)
	r := gin.New()
	r.Use(RequestID(), CORS(), SecurityHeaders(), l.GinMiddleware(func(c *gin.Context) string {
		return c.GetHeader("X-Operator")
	}))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	do := func(method, operator, reqID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/ping", nil)
		req.Header.Set("X-Operator", operator)
		if reqID != "" {
			req.Header.Set(RequestIDHeader, reqID)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodGet, "op-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	w = do(http.MethodGet, "op-1", "abc-123")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "op-2", "").Code)

	w = do(http.MethodOptions, "op-3", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
