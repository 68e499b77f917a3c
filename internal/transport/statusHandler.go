package transport

import (
	"net/http"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/gin-gonic/gin"
)

func (h *OverlayHandler) GetCoords(c *gin.Context) {
	coords, ok := h.coords.LastCoords()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No coordinates yet. Click the canvas first."})
		return
	}
	displayX, displayY := entity.ServerToDisplay(coords.Tile(), coords.PixelX, coords.PixelY)
	c.JSON(http.StatusOK, gin.H{
		"coords":  coords,
		"display": gin.H{"x": displayX, "y": displayY},
	})
}

func (h *OverlayHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"enabled": h.service.Enabled(),
		"userId":  h.service.UserID(),
		"board":   h.status.Snapshot(),
	})
}

func (h *OverlayHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
