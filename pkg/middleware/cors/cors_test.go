package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newEngine(origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/api/v1/programs", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func preflight(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/programs", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	return req
}

func TestCORSListedOrigin(t *testing.T) {
	r := newEngine("https://pmb.example.ac.id/")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, preflight("https://PMB.example.ac.id"))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://PMB.example.ac.id", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, allowMethods, w.Header().Get("Access-Control-Allow-Methods"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/programs", nil)
	req.Header.Set("Origin", "https://pmb.example.ac.id")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}

func TestCORSUnlistedOrigin(t *testing.T) {
	r := newEngine("https://pmb.example.ac.id")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, preflight("https://evil.example"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/programs", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcard(t *testing.T) {
	for _, origins := range [][]string{nil, {"*"}} {
		w := httptest.NewRecorder()
		newEngine(origins...).ServeHTTP(w, preflight("https://anywhere.example"))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
