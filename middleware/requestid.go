package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id (reusing the caller's
// X-Request-ID when sent) and logs one line when it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()
		log.Printf("[REQ] id=%s %s %s status=%d dur=%s",
			id, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
