package transport

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/ds124wfegd/tile-overlay/internal/service"
	"github.com/gin-gonic/gin"
)

var coordFields = []string{"tx", "ty", "px", "py"}

func (h *OverlayHandler) CreateTemplate(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return
	}

	// Проверка типа файла
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !isValidImageType(ext) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image type. Supported: png, jpg, jpeg, gif, webp, bmp"})
		return
	}

	coords := make([]int, 0, len(coordFields))
	for _, field := range coordFields {
		v, err := strconv.Atoi(c.PostForm(field))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid coordinate " + field})
			return
		}
		coords = append(coords, v)
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	name := c.PostForm("name")
	if name == "" {
		name = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}

	tpl, err := h.service.CreateTemplate(c.Request.Context(), name, src, coords)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil && tpl == nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	templates := h.service.Templates()
	c.JSON(http.StatusCreated, entity.CreateTemplateResponse{
		Template: templates[len(templates)-1],
		Status:   "created",
	})
}

func (h *OverlayHandler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"enabled":   h.service.Enabled(),
		"templates": h.service.Templates(),
	})
}

func (h *OverlayHandler) DeleteTemplate(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template index"})
		return
	}

	err = h.service.RemoveTemplate(c.Request.Context(), index)
	if errors.Is(err, service.ErrIndexOutOfRange) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Template deleted successfully"})
}

func (h *OverlayHandler) ClearTemplates(c *gin.Context) {
	if err := h.service.ClearTemplates(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All templates deleted"})
}

func (h *OverlayHandler) ToggleTemplates(c *gin.Context) {
	var req entity.ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.service.ToggleTemplates(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": h.service.Enabled()})
}

func isValidImageType(ext string) bool {
	validTypes := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
		".webp": true,
		".bmp":  true,
	}
	return validTypes[ext]
}
