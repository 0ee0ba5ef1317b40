package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/server/auth"
)

// SessionMiddleware validates the session cookie and stores the claims on
// the request context.
func SessionMiddleware(as accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(common.SessionCookieName)
		if err != nil || token == "" {
			abortWithError(c, common.ErrSessionInvalid)
			return
		}

		claims, err := as.Verify(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func requestLogger(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
