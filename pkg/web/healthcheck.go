package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheckEndpoint answers GET /health, unauthenticated, per §6: 200 with
// an empty body whenever the process is up, independent of upstream health.
func HealthCheckEndpoint(c *gin.Context) {
	c.Data(http.StatusOK, gin.MIMEPlain, nil)
}
