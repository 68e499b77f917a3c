package transport

import (
	"net/http"

	"github.com/ds124wfegd/tile-overlay/internal/transport/middleware"
	"github.com/gin-gonic/gin"
)

// InitRoutes serves the overlay API under /overlay and proxies everything
// else to the canvas upstream. A nil handler leaves /overlay to the proxy; a
// nil proxy answers unknown paths with 404. The split deployment uses one of
// each: the proxy process has no template state, the bridge process has no
// upstream.
func InitRoutes(h *OverlayHandler, proxy http.Handler, timeoutSeconds int) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	if h != nil {
		overlayRoutes(router, h, timeoutSeconds)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "tile-overlay",
		})
	})

	if proxy != nil {
		router.NoRoute(ProxyHandler(proxy))
	}
	return router
}

func overlayRoutes(router *gin.Engine, h *OverlayHandler, timeoutSeconds int) {
	overlay := router.Group("/overlay")
	overlay.Use(middleware.CORS())
	overlay.Use(middleware.Timeout(timeoutSeconds))
	{
		templates := overlay.Group("/templates")
		{
			templates.POST("", h.CreateTemplate)
			templates.GET("", h.ListTemplates)
			templates.DELETE("", h.ClearTemplates)
			templates.DELETE("/:index", h.DeleteTemplate)
		}

		overlay.OPTIONS("/*any", func(c *gin.Context) {})
		overlay.POST("/toggle", h.ToggleTemplates)
		overlay.GET("/coords", h.GetCoords)
		overlay.GET("/status", h.GetStatus)
		overlay.GET("/metrics", h.GetMetrics)
	}
}
