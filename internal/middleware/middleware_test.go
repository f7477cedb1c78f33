package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery/internal/metrics"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(
		RequestID(),
		Logger(zerolog.Nop()),
		Recovery(zerolog.Nop()),
		Metrics(metrics.MustNewMetrics(prometheus.NewRegistry())),
		CORS(nil),
	)
	engine.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	engine.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	return engine
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	engine := newEngine()

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ok", nil))
	_, err := uuid.Parse(rr.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(requestIDHeader, id)
	rr = httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	assert.Equal(t, id, rr.Header().Get(requestIDHeader))
}

func TestRequestIDReplacesGarbage(t *testing.T) {
	engine := newEngine()

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(requestIDHeader, "<script>")
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	assert.NotEqual(t, "<script>", rr.Header().Get(requestIDHeader))
}

func TestRecoveryReturns500(t *testing.T) {
	engine := newEngine()

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, rr.Body.String())
}

func TestCORSAllowsAnyOriginByDefault(t *testing.T) {
	engine := newEngine()

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRestrictsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS([]string{"https://gallery.example.com"}))
	engine.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
