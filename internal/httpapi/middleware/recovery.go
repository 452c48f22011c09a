package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/minchat/minchat/internal/common"
)

// Recovery converts panics into the API's single error object instead of
// gin's default plain-text response.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("requestId", c.GetString(RequestIDKey)))
				if !c.Writer.Written() {
					common.Fail(c, http.StatusInternalServerError, "internal", "internal server error")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
