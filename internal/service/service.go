package service

import (
	"context"
	"errors"
	"io"

	"github.com/ds124wfegd/tile-overlay/internal/database"
	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/ds124wfegd/tile-overlay/internal/notify"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/processor"
)

// StorageKey is where the template list lives; a user id, once known, is
// appended as a namespace.
const StorageKey = "ns_templates"

// CoordsKey holds the last coordinate picked on the canvas, namespaced the
// same way.
const CoordsKey = "ns_last_coords"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrIndexOutOfRange = errors.New("template index out of range")
)

type TemplateService interface {
	CreateTemplate(ctx context.Context, name string, file io.Reader, coords []int) (*processor.Template, error)
	DrawTemplateOnTile(ctx context.Context, tile []byte, coords entity.TileCoords) ([]byte, error)
	SaveTemplates(ctx context.Context) error
	LoadTemplates(ctx context.Context) error

	SetUserID(id string) bool
	SwitchUser(ctx context.Context, id string) error
	UserID() string
	SetLastCoords(ctx context.Context, coords entity.Coordinate) error
	LastCoords() (entity.Coordinate, bool)
	ToggleTemplates(enabled bool)
	Enabled() bool
	Templates() []entity.TemplateSummary
	RemoveTemplate(ctx context.Context, index int) error
	ClearTemplates(ctx context.Context) error
}

type templateService struct {
	repo     database.TemplateRepository
	reporter notify.Reporter
	options  []processor.Option

	state
}

func NewTemplateService(repo database.TemplateRepository, reporter notify.Reporter, options ...processor.Option) TemplateService {
	return &templateService{
		repo:     repo,
		reporter: reporter,
		options:  options,
		state:    state{enabled: true},
	}
}
