package web

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/gin-gonic/gin"
)

// RequestIDHeader is the response header every request, including error
// responses, carries its generated request id under.
const RequestIDHeader = "x-amz-request-id"

const requestIDContextKey = "requestID"

// RequestID assigns each request a random 16-hex-character id, stashed in the
// gin context for handlers/writeError to attach to both logs and responses.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := generateRequestID()
		c.Set(requestIDContextKey, id)
		c.Next()
	}
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken;
		// a zeroed id still lets the request proceed rather than fail closed.
		return hex.EncodeToString(buf)
	}
	return hex.EncodeToString(buf)
}

func requestIDFrom(c *gin.Context) string {
	v, ok := c.Get(requestIDContextKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}
