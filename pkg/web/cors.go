package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS allows any origin to read responses via GET/HEAD, exposing the
// headers an S3 client needs to read object metadata from a browser, per §6.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, HEAD")
		c.Header("Access-Control-Expose-Headers", "ETag, Content-Length, Content-Range, Last-Modified, x-amz-*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
