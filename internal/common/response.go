package common

import "github.com/gin-gonic/gin"

// Fail writes the single error object shape used across the API.
func Fail(c *gin.Context, status int, code string, msg string) {
	c.JSON(status, gin.H{
		"error":   code,
		"message": msg,
	})
}

// FailRetry is Fail plus a client-side backoff hint in milliseconds.
func FailRetry(c *gin.Context, status int, code string, msg string, retryAfterMs int) {
	c.JSON(status, gin.H{
		"error":        code,
		"message":      msg,
		"retryAfterMs": retryAfterMs,
	})
}
