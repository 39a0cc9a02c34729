package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})

	t.Run("keeps caller request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping?x=1", nil)
		req.Header.Set("X-Request-ID", "abc")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "abc", w.Body.String())
		assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "/ping", fields["path"])
		assert.Equal(t, "x=1", fields["query"])
		assert.EqualValues(t, http.StatusOK, fields["status"])
	})

	t.Run("generates request id", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.NotEmpty(t, w.Body.String())
		assert.NotEqual(t, "unknown", w.Body.String())
		assert.Len(t, logs.TakeAll(), 1)
	})
}

func TestWatermillAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	adapter := Watermill(zap.New(core)).With(watermill.LogFields{"topic": "agora.wallet"})

	adapter.Info("published", watermill.LogFields{"uuid": "1"})
	adapter.Error("failed", errors.New("boom"), nil)
	adapter.Trace("trace", nil)

	entries := logs.TakeAll()
	require.Len(t, entries, 3)
	assert.Equal(t, "agora.wallet", entries[0].ContextMap()["topic"])
	assert.Equal(t, "1", entries[0].ContextMap()["uuid"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, zap.DebugLevel, entries[2].Level)
}
