package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CORSConfig allows the configured frontends to call the API with a tenant header.
func CORSConfig(allowedOrigins []string) cors.Config {
	return cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", TenantHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func SetupRoutes(router *gin.Engine, handler *Handler, gatherer prometheus.Gatherer, allowedOrigins []string) {
	router.Use(cors.New(CORSConfig(allowedOrigins)))

	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.Use(RequireTenant())
	{
		api.POST("/listings", handler.IngestListings)
		api.GET("/properties", handler.GetProperties)
		api.GET("/properties.geojson", handler.GetPropertiesGeoJSON)
		api.GET("/properties/:id", handler.GetProperty)
		api.GET("/properties/:id/candidates", handler.GetCandidates)
		api.GET("/properties/:id/ingests", handler.GetIngests)
		api.POST("/search", handler.Search)
		api.GET("/reviews", handler.GetReviews)
		api.POST("/reviews/:id/resolve", handler.ResolveReview)
		api.POST("/sweep", handler.RunSweep)
	}
}
