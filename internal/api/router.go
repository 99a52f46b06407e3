package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/riftline/rift-rewind/internal/api/handlers"
	"github.com/riftline/rift-rewind/internal/cache"
	"github.com/riftline/rift-rewind/internal/rewind"
	"github.com/riftline/rift-rewind/internal/riot"
	"github.com/riftline/rift-rewind/internal/usage"
	"github.com/riftline/rift-rewind/pkg/config"
)

// SetupRoutes configures all API routes on the given router group.
func SetupRoutes(group *gin.RouterGroup, aggregator *rewind.Aggregator, monitor *usage.Monitor, keyring *riot.Keyring, layered *cache.Layered, cfg *config.Config, logger *logrus.Logger) {
	rewindHandler := handlers.NewRewindHandler(aggregator, cfg, logger)
	adminHandler := handlers.NewAdminHandler(monitor, keyring, layered, logger)

	group.GET("/rewind", rewindHandler.GetRewind)
	group.GET("/usage", adminHandler.GetUsage)
	group.GET("/keys", adminHandler.GetKeys)
	group.GET("/cache", adminHandler.GetCacheStats)
	group.DELETE("/cache", adminHandler.ClearCache)
}
