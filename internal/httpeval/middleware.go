package httpeval

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/jseval/internal/protocol"
)

const requestIDKey = "request_id"

// RequestID propagates the caller's X-Request-ID, assigning a UUID to
// requests that arrive without one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(protocol.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(protocol.RequestIDHeader, id)
		c.Next()
	}
}
