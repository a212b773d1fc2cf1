package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "docforge/internal/core/context"
)

// HeaderUserID carries the caller identity established by an upstream
// authenticating proxy.
const HeaderUserID = "X-User-ID"

// UserContext adds the caller from X-User-ID to the request context, where
// document defaults (owner, created_by) and the transition trail read it.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{UserID: uid})
			c.Request = c.Request.WithContext(ctx)
			c.Set("user_id", uid)
		}
		c.Next()
	}
}
