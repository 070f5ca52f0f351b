package web

import (
	"github.com/gin-gonic/gin"

	"github.com/terrycain/s3-read-proxy/pkg/metrics"
)

// GetRouter wires the full read-only route surface: an unauthenticated
// health check, and the SigV4-authenticated object GET/HEAD and
// bucket/account listing routes, per §4.6/§6.
//
// The account-level listing lives at "/:account" (the repository, if any, is
// carried inside the "prefix" query parameter rather than the path); object
// access lives at "/:account/:repo/*key" since a key may itself contain '/'.
func GetRouter(metricsListenAddress string, webHandler Handlers, withMetrics bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), GinLogger(), RequestID(), CORS())
	if withMetrics {
		router.Use(metrics.PromReqMiddleware())
		go metrics.Server(metricsListenAddress)
	}
	router.Use(XForwardedProto("http"))

	router.GET("/health", HealthCheckEndpoint)

	router.GET("/:account", webHandler.AuthRequired(), webHandler.ListObjects)
	router.GET("/:account/:repo/*key", webHandler.AuthRequired(), webHandler.GetObject)
	router.HEAD("/:account/:repo/*key", webHandler.AuthRequired(), webHandler.HeadObject)

	return router
}
