package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelHub/internal/mapping"
	"github.com/router-for-me/ChannelHub/internal/upstream"
)

// MappingHandler manages the standard-model redirect mapping.
type MappingHandler struct {
	service *mapping.Service
}

// NewMappingHandler constructs a mapping handler.
func NewMappingHandler(service *mapping.Service) *MappingHandler {
	return &MappingHandler{service: service}
}

// Generate recomputes the mapping from the current channel inventory and
// replaces the stored snapshot.
func (h *MappingHandler) Generate(c *gin.Context) {
	result, errGenerate := h.service.Generate(c.Request.Context(), "manual")
	if errGenerate != nil {
		switch {
		case errors.Is(errGenerate, mapping.ErrNoEnabledChannels):
			c.JSON(http.StatusBadRequest, gin.H{"error": "no enabled channels"})
		case errors.Is(errGenerate, upstream.ErrNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upstream not configured"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "generate mapping failed"})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// Current returns the stored mapping snapshot.
func (h *MappingHandler) Current(c *gin.Context) {
	result, errCurrent := h.service.Current(c.Request.Context())
	if errCurrent != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load mapping failed"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no mapping yet"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Clear removes the stored mapping snapshot.
func (h *MappingHandler) Clear(c *gin.Context) {
	if errClear := h.service.Clear(c.Request.Context()); errClear != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear mapping failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Suggestions returns the deduplicated model names across enabled channels
// for autocomplete.
func (h *MappingHandler) Suggestions(c *gin.Context) {
	names, errSuggest := h.service.StandardModelSuggestions(c.Request.Context())
	if errSuggest != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load suggestions failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": names})
}
