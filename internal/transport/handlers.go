package transport

import (
	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/ds124wfegd/tile-overlay/internal/notify"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/metrics"
	"github.com/ds124wfegd/tile-overlay/internal/service"
)

// CoordsSource is implemented by the bridge.
type CoordsSource interface {
	LastCoords() (entity.Coordinate, bool)
}

type StatusSource interface {
	Snapshot() notify.Snapshot
}

type OverlayHandler struct {
	service service.TemplateService
	coords  CoordsSource
	status  StatusSource
	metrics *metrics.Registry
}

func NewOverlayHandler(service service.TemplateService, coords CoordsSource, status StatusSource, reg *metrics.Registry) *OverlayHandler {
	return &OverlayHandler{service: service, coords: coords, status: status, metrics: reg}
}
