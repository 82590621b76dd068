package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelHub/internal/scheduler"
	"github.com/router-for-me/ChannelHub/internal/settings"
)

// SyncSettingsHandler exposes the sync and mapping configuration.
type SyncSettingsHandler struct {
	scheduler *scheduler.Scheduler
	store     *settings.Store
}

// NewSyncSettingsHandler constructs a settings handler.
func NewSyncSettingsHandler(sched *scheduler.Scheduler, store *settings.Store) *SyncSettingsHandler {
	return &SyncSettingsHandler{scheduler: sched, store: store}
}

// Get returns the effective sync configuration.
func (h *SyncSettingsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, formatSyncConfig(settings.LoadSyncConfig(h.store)))
}

// Update merges a partial configuration, persists it, and re-arms the
// scheduler so interval changes apply without a restart.
func (h *SyncSettingsHandler) Update(c *gin.Context) {
	var patch settings.SyncConfigPatch
	if errBind := c.ShouldBindJSON(&patch); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	merged, errUpdate := h.scheduler.UpdateSettings(c.Request.Context(), patch)
	if errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save settings failed"})
		return
	}
	c.JSON(http.StatusOK, formatSyncConfig(merged))
}

// formatSyncConfig formats the config with the same field names the patch
// payload uses.
func formatSyncConfig(cfg settings.SyncConfig) gin.H {
	return gin.H{
		"enabled":             cfg.Enabled,
		"interval_ms":         cfg.IntervalMS,
		"concurrency":         cfg.Concurrency,
		"max_retries":         cfg.MaxRetries,
		"requests_per_minute": cfg.RequestsPerMinute,
		"burst":               cfg.Burst,
		"priority_weight":     cfg.PriorityWeight,
		"weight_weight":       cfg.WeightWeight,
		"used_quota_weight":   cfg.UsedQuotaWeight,
	}
}
