// Package bridge is the receiving end of the interceptor. It reacts to
// forwarded JSON by updating the user and coordinate state, and answers
// forwarded tiles with composited ones.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/ds124wfegd/tile-overlay/internal/notify"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/messaging"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/metrics"
	"github.com/ds124wfegd/tile-overlay/internal/service"
	"github.com/sirupsen/logrus"
)

const (
	FieldUsername  = "bm-user-name"
	FieldDroplets  = "bm-user-droplets"
	FieldNextLevel = "bm-user-nextlevel"
	FieldTileX     = "ns-input-tx"
	FieldTileY     = "ns-input-ty"
	FieldPixelX    = "ns-input-px"
	FieldPixelY    = "ns-input-py"
)

type Callbacks struct {
	OnUserData   func(entity.UserProfile)
	OnCoordsData func(entity.Coordinate)
}

type Bridge struct {
	source   string
	events   messaging.Channel
	replies  messaging.Channel
	service  service.TemplateService
	reporter notify.Reporter
	metrics  *metrics.Registry

	mu        sync.RWMutex
	callbacks Callbacks
}

func New(source string, events, replies messaging.Channel, svc service.TemplateService, reporter notify.Reporter, reg *metrics.Registry) *Bridge {
	return &Bridge{
		source:   source,
		events:   events,
		replies:  replies,
		service:  svc,
		reporter: reporter,
		metrics:  reg,
	}
}

// Init registers the callbacks invoked after a profile or a coordinate is parsed.
func (b *Bridge) Init(cb Callbacks) {
	b.mu.Lock()
	b.callbacks = cb
	b.mu.Unlock()
}

// LastCoords is the last coordinate picked on the canvas, restored from
// storage after a restart.
func (b *Bridge) LastCoords() (entity.Coordinate, bool) {
	return b.service.LastCoords()
}

// Listen handles envelopes one at a time, in arrival order, until ctx is done.
func (b *Bridge) Listen(ctx context.Context) error {
	sub, err := b.events.Subscribe(ctx)
	if err != nil {
		return err
	}
	logrus.WithField("source", b.source).Info("Bridge listening for intercepted responses")
	for env := range sub {
		if err := b.Handle(ctx, env); err != nil {
			logrus.WithFields(logrus.Fields{
				"endpoint": env.Endpoint,
				"blob_id":  env.BlobID,
			}).Errorf("Failed to handle envelope: %v", err)
		}
	}
	return ctx.Err()
}

func (b *Bridge) Handle(ctx context.Context, env entity.Envelope) error {
	if env.Source != b.source {
		return nil
	}
	match := Classify(env.Endpoint)
	if match.Route == RouteNone {
		return nil
	}
	b.metrics.Inc(ctx, metrics.BridgeMessages, map[string]string{"route": string(match.Route)})

	var err error
	switch match.Route {
	case RouteMe:
		err = b.handleUser(ctx, env)
	case RoutePixel:
		err = b.handlePixel(ctx, match)
	case RouteTiles:
		err = b.handleTile(ctx, env, match)
	}
	if err != nil {
		b.metrics.Inc(ctx, metrics.BridgeErrors, map[string]string{"route": string(match.Route)})
	}
	return err
}

func (b *Bridge) handleUser(ctx context.Context, env entity.Envelope) error {
	var profile entity.UserProfile
	if err := json.Unmarshal(env.JSONData, &profile); err != nil {
		b.reporter.ReportError("Failed to read user data.")
		return fmt.Errorf("decode user profile: %w", err)
	}
	if !profile.Authenticated() {
		b.reporter.ReportError("You are not logged in!")
		return nil
	}

	b.reporter.SetField(FieldUsername, profile.Name)
	b.reporter.SetField(FieldDroplets, strconv.FormatFloat(profile.Droplets, 'f', -1, 64))
	b.reporter.SetField(FieldNextLevel, strconv.Itoa(profile.PixelsToNextLevel()))

	if id := profile.UserID(); id != "" {
		if err := b.service.SwitchUser(ctx, id); err != nil {
			return fmt.Errorf("switch to user %s: %w", id, err)
		}
	}

	b.mu.RLock()
	onUser := b.callbacks.OnUserData
	b.mu.RUnlock()
	if onUser != nil {
		onUser(profile)
	}
	return nil
}

func (b *Bridge) handlePixel(ctx context.Context, match Match) error {
	px, errX := strconv.Atoi(match.Query.Get("x"))
	py, errY := strconv.Atoi(match.Query.Get("y"))
	if errX != nil || errY != nil {
		b.reporter.ReportError("Coordinates are malformed. Did you try clicking the canvas first?")
		return fmt.Errorf("%w: pixel query x=%q y=%q", service.ErrInvalidInput, match.Query.Get("x"), match.Query.Get("y"))
	}
	coords := entity.Coordinate{TileX: match.Tile[0], TileY: match.Tile[1], PixelX: px, PixelY: py}
	if !coords.Valid() {
		b.reporter.ReportError("Coordinates are malformed. Did you try clicking the canvas first?")
		return fmt.Errorf("%w: negative coordinate %v", service.ErrInvalidInput, coords.Slice())
	}

	saveErr := b.service.SetLastCoords(ctx, coords)

	b.mu.RLock()
	onCoords := b.callbacks.OnCoordsData
	b.mu.RUnlock()

	b.reporter.SetField(FieldTileX, strconv.Itoa(coords.TileX))
	b.reporter.SetField(FieldTileY, strconv.Itoa(coords.TileY))
	b.reporter.SetField(FieldPixelX, strconv.Itoa(coords.PixelX))
	b.reporter.SetField(FieldPixelY, strconv.Itoa(coords.PixelY))

	if onCoords != nil {
		onCoords(coords)
	}
	if saveErr != nil {
		return fmt.Errorf("persist coordinates: %w", saveErr)
	}
	return nil
}

func (b *Bridge) handleTile(ctx context.Context, env entity.Envelope, match Match) error {
	if env.BlobID == "" || len(env.BlobData) == 0 {
		return fmt.Errorf("%w: tile envelope without blob", service.ErrInvalidInput)
	}
	tile := entity.TileCoords{X: match.Tile[0], Y: match.Tile[1]}

	// DrawTemplateOnTile hands back the original bytes on failure, so the
	// reply is sent either way.
	data, drawErr := b.service.DrawTemplateOnTile(ctx, env.BlobData, tile)
	if drawErr != nil {
		b.reporter.ReportError(fmt.Sprintf("Failed to draw templates on tile %s.", tile.Key()))
	}

	reply := entity.Envelope{
		Source:   entity.ReplySource(b.source),
		BlobID:   env.BlobID,
		BlobData: data,
	}
	if err := b.replies.Publish(ctx, reply); err != nil {
		return fmt.Errorf("publish reply for %s: %w", env.BlobID, err)
	}
	return drawErr
}
