package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelHub/internal/channelsync"
	"github.com/router-for-me/ChannelHub/internal/scheduler"
	"github.com/router-for-me/ChannelHub/internal/upstream"
)

// SyncHandler drives channel model syncs through the scheduler.
type SyncHandler struct {
	scheduler *scheduler.Scheduler
	service   *channelsync.Service
}

// NewSyncHandler constructs a sync handler.
func NewSyncHandler(sched *scheduler.Scheduler, service *channelsync.Service) *SyncHandler {
	return &SyncHandler{scheduler: sched, service: service}
}

// executeSyncRequest captures the optional channel selection.
type executeSyncRequest struct {
	ChannelIDs []int64 `json:"channel_ids"` // Empty means all channels.
}

// Execute runs one sync now and returns the execution result.
func (h *SyncHandler) Execute(c *gin.Context) {
	var body executeSyncRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	result, errRun := h.scheduler.TriggerManual(c.Request.Context(), body.ChannelIDs)
	if errRun != nil {
		h.writeSyncError(c, errRun)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RetryFailed re-runs only the channels that failed in the last execution.
func (h *SyncHandler) RetryFailed(c *gin.Context) {
	result, errRun := h.scheduler.TriggerFailedOnly(c.Request.Context())
	if errRun != nil {
		h.writeSyncError(c, errRun)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Progress returns the in-flight run state, or null when idle.
func (h *SyncHandler) Progress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"progress": h.scheduler.Progress()})
}

// Abort cancels the in-flight run, if any.
func (h *SyncHandler) Abort(c *gin.Context) {
	h.scheduler.Abort()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// LastExecution returns the most recent persisted execution.
func (h *SyncHandler) LastExecution(c *gin.Context) {
	last, errLast := h.service.LastExecution(c.Request.Context())
	if errLast != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load last execution failed"})
		return
	}
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no execution yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}

func (h *SyncHandler) writeSyncError(c *gin.Context, errRun error) {
	switch {
	case errors.Is(errRun, scheduler.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "sync already running"})
	case errors.Is(errRun, channelsync.ErrNoChannels):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no channels to sync"})
	case errors.Is(errRun, channelsync.ErrNoPreviousExecution):
		c.JSON(http.StatusNotFound, gin.H{"error": "no previous execution"})
	case errors.Is(errRun, channelsync.ErrNoFailedChannels):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no failed channels to retry"})
	case errors.Is(errRun, upstream.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upstream not configured"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": errRun.Error()})
	}
}
