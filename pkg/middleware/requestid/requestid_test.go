package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		*captured = Value(c)
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddlewareGeneratesID(t *testing.T) {
	var got string
	w := httptest.NewRecorder()
	newRouter(&got).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, got, 36)
	assert.Equal(t, got, w.Header().Get(headerKey))
}

func TestMiddlewareReusesClientID(t *testing.T) {
	var got string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, "req-123")
	newRouter(&got).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-123", got)
}

func TestMiddlewareReplacesOversizedID(t *testing.T) {
	var got string
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerKey, strings.Repeat("x", maxLength+1))
	newRouter(&got).ServeHTTP(httptest.NewRecorder(), req)

	assert.Len(t, got, 36)
}
