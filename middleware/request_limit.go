package middleware

import (
	"net/http"

	"brand-deck-platform/utils"

	"github.com/gin-gonic/gin"
)

// RequestSizeLimit rejects oversized request bodies. A declared
// Content-Length above the limit is refused up front; bodies without one
// (chunked uploads) are capped while being read, which surfaces as a
// read error in the handler.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size":    maxSize,
					"received":    c.Request.ContentLength,
					"max_size_mb": maxSize / (1024 * 1024),
				})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
