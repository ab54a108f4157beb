package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/storagepod/storagepod/internal/shared/id"
)

// RequestIDHeader is the response header carrying the generated request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with a fresh ULID, exposed on the response
// and in the gin context for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := id.NewRequestID().String()
		c.Set("request_id", rid)
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}
