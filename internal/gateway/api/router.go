package api

import (
	"Argus/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires the gateway's routes onto the router. limiter may be
// nil when rate limiting is not configured.
func RegisterRoutes(router *gin.Engine, api *API, limiter ratelimiter.RateLimiter) {
	router.Use(gin.Recovery())
	router.Use(TraceMiddleware())
	router.Use(RequestLogMiddleware(api.logger))
	router.Use(CORSMiddleware())
	if limiter != nil {
		router.Use(RateLimitMiddleware(limiter))
	}

	router.GET("/healthz", api.HealthHandler)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/ask", api.AskHandler)
		v1.GET("/ask/:id", api.GetJobHandler)

		v1.GET("/config/:scope", api.GetConfigHandler)
		v1.POST("/config/:scope", api.SetConfigHandler)

		v1.POST("/moderate", api.ModerateHandler)
		v1.POST("/validate", api.ValidateHandler)
	}
}
