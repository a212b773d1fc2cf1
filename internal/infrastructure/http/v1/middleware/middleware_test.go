package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/core/apperror"
	appctx "docforge/internal/core/context"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), Trace(), ErrorHandler(), UserContext())
	return r
}

func serve(t *testing.T, r *gin.Engine, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestErrorHandler(t *testing.T) {
	r := newEngine()
	r.GET("/app", func(c *gin.Context) {
		_ = c.Error(apperror.NewNotFound("doctype", "Task"))
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("db down"))
	})

	w, body := serve(t, r, httptest.NewRequest(http.MethodGet, "/app", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, body["code"])

	w, body = serve(t, r, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestRecovery(t *testing.T) {
	r := newEngine()
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w, body := serve(t, r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestTraceAndUserContext(t *testing.T) {
	r := newEngine()
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":       appctx.GetUserID(c.Request.Context()),
			"request_id": c.GetString("request_id"),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, " bob ")
	req.Header.Set(HeaderRequestID, "req-1")
	w, body := serve(t, r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", body["user"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))

	w, body = serve(t, r, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, "", body["user"])
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
