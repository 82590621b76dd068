package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelHub/internal/channelsync"
	"github.com/router-for-me/ChannelHub/internal/upstream"
)

// ChannelHandler exposes the upstream channel inventory.
type ChannelHandler struct {
	service *channelsync.Service
}

// NewChannelHandler constructs a channel handler.
func NewChannelHandler(service *channelsync.Service) *ChannelHandler {
	return &ChannelHandler{service: service}
}

// List returns the upstream channels with their cached model lists applied.
func (h *ChannelHandler) List(c *gin.Context) {
	channels, errList := h.service.ChannelsWithCachedModels(c.Request.Context())
	if errList != nil {
		if errors.Is(errList, upstream.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upstream not configured"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "list channels failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"channels": channels,
		"total":    len(channels),
	})
}
