package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/riftline/rift-rewind/internal/cache"
	"github.com/riftline/rift-rewind/internal/riot"
	"github.com/riftline/rift-rewind/internal/usage"
	"github.com/riftline/rift-rewind/pkg/utils"
)

// AdminHandler exposes the operational read models plus the one destructive
// action (full cache clear).
type AdminHandler struct {
	monitor *usage.Monitor
	keyring *riot.Keyring
	cache   *cache.Layered
	logger  *logrus.Logger
}

func NewAdminHandler(monitor *usage.Monitor, keyring *riot.Keyring, layered *cache.Layered, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		monitor: monitor,
		keyring: keyring,
		cache:   layered,
		logger:  logger,
	}
}

// GetUsage returns the usage monitor snapshot.
func (h *AdminHandler) GetUsage(c *gin.Context) {
	utils.SendSuccess(c, h.monitor.GetSnapshot())
}

// GetKeys returns the keyring status.
func (h *AdminHandler) GetKeys(c *gin.Context) {
	utils.SendSuccess(c, h.keyring.Snapshot())
}

// GetCacheStats returns per-tier entry counts.
func (h *AdminHandler) GetCacheStats(c *gin.Context) {
	utils.SendSuccess(c, h.cache.Stats())
}

// ClearCache wipes both cache tiers.
func (h *AdminHandler) ClearCache(c *gin.Context) {
	if err := h.cache.Clear(); err != nil {
		h.logger.Errorf("Cache clear failed: %v", err)
		utils.SendInternalError(c, "failed to clear cache")
		return
	}
	h.logger.Warn("Cache cleared by administrative request")
	utils.SendSuccess(c, gin.H{"cleared": true})
}
