package web

import "github.com/gin-gonic/gin"

// XForwardedProto normalizes c.Request.URL.Scheme from the load balancer's
// X-Forwarded-Proto header, falling back to defaultScheme when absent, so
// anything downstream that inspects the request URL sees the scheme the
// client actually connected with rather than the scheme gin's own
// TLS-terminated listener saw.
func XForwardedProto(defaultScheme string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hdr := c.GetHeader("X-Forwarded-Proto"); hdr != "" {
			c.Request.URL.Scheme = hdr
		} else {
			c.Request.URL.Scheme = defaultScheme
		}

		c.Next()
	}
}
