package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newCORSRouter(origins []string, exposed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins, exposed...))
	r.GET("/catalog/documents", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORSAllowedOriginAndExposedHeaders(t *testing.T) {
	r := newCORSRouter([]string{"https://portal.example.edu/"}, "X-Document-Catalog-Version")

	req := httptest.NewRequest(http.MethodGet, "/catalog/documents", nil)
	req.Header.Set("Origin", "https://portal.example.edu")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "https://portal.example.edu", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Content-Disposition, X-Request-ID, X-Document-Catalog-Version", w.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSRejectsUnknownOriginAndAnswersPreflight(t *testing.T) {
	r := newCORSRouter([]string{"https://portal.example.edu"})

	req := httptest.NewRequest(http.MethodOptions, "/catalog/documents", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
