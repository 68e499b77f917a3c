package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/processor"
	"github.com/sirupsen/logrus"
)

type state struct {
	mu         sync.RWMutex
	templates  []*processor.Template
	enabled    bool
	userID     string
	lastCoords *entity.Coordinate
}

func (s *templateService) CreateTemplate(ctx context.Context, name string, file io.Reader, coords []int) (*processor.Template, error) {
	anchor, err := entity.CoordinateFromSlice(coords)
	if file == nil || err != nil {
		s.reporter.ReportError("File or coordinates missing to create the template.")
		if err == nil {
			err = fmt.Errorf("template file is missing")
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.reporter.ReportStatus("Processing new template...")

	tpl, err := processor.NewTemplate(name, &anchor, s.options...)
	if err != nil {
		s.reporter.ReportError("Failed to process the template.")
		return nil, err
	}
	if err := tpl.Process(file); err != nil {
		s.reporter.ReportError("Failed to process the template.")
		return nil, err
	}

	s.mu.Lock()
	s.templates = append(s.templates, tpl)
	err = s.saveLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		s.reporter.ReportError("Template created but could not be saved.")
		return tpl, err
	}

	s.reporter.ReportStatus(fmt.Sprintf("Template %q created with %d pixels.", tpl.DisplayName, tpl.PixelCount))
	return tpl, nil
}

// DrawTemplateOnTile returns the tile with every matching fragment drawn on
// top, in insertion order. When nothing applies, or the tile cannot be
// decoded, the input bytes come back unchanged.
func (s *templateService) DrawTemplateOnTile(ctx context.Context, tile []byte, coords entity.TileCoords) ([]byte, error) {
	key := coords.Key()

	s.mu.RLock()
	if !s.enabled || len(s.templates) == 0 {
		s.mu.RUnlock()
		return tile, nil
	}
	var fragments []*processor.Fragment
	for _, tpl := range s.templates {
		if frag, ok := tpl.Chunks[key]; ok {
			fragments = append(fragments, frag)
		}
	}
	s.mu.RUnlock()

	if len(fragments) == 0 {
		return tile, nil
	}

	out, err := processor.CompositeTile(tile, fragments)
	if err != nil {
		return tile, fmt.Errorf("tile %s: %w", key, err)
	}
	return out, nil
}

func (s *templateService) SaveTemplates(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked(ctx)
}

func (s *templateService) saveLocked(ctx context.Context) error {
	records := make([]entity.TemplateRecord, 0, len(s.templates))
	for _, tpl := range s.templates {
		records = append(records, tpl.Record())
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := s.repo.Set(ctx, s.storageKey(), string(data)); err != nil {
		return fmt.Errorf("save templates: %w", err)
	}
	logrus.Infof("%d templates saved", len(records))
	return nil
}

// LoadTemplates replaces the in-memory list with the stored one. A missing or
// malformed value leaves an empty list.
func (s *templateService) LoadTemplates(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *templateService) loadLocked(ctx context.Context) error {
	raw, err := s.repo.Get(ctx, s.storageKey(), "[]")
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	s.lastCoords = s.loadCoordsLocked(ctx)

	s.templates = nil
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		logrus.Warnf("stored templates under %q are not a list, starting empty", s.storageKey())
		return nil
	}
	var records []entity.TemplateRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		logrus.Warnf("stored templates under %q are malformed, starting empty: %v", s.storageKey(), err)
		return nil
	}

	for _, rec := range records {
		tpl, errs := processor.FromRecord(rec, s.options...)
		for _, e := range errs {
			s.reporter.ReportError(fmt.Sprintf("Could not restore template %q: %v", rec.DisplayName, e))
		}
		if tpl != nil {
			s.templates = append(s.templates, tpl)
		}
	}

	if len(s.templates) > 0 {
		s.reporter.ReportStatus(fmt.Sprintf("%d template(s) loaded.", len(s.templates)))
	}
	logrus.Infof("%d templates loaded from storage", len(s.templates))
	return nil
}

// SwitchUser moves the service to the namespace of id and loads it. Templates
// and the last coordinate collected before any user was known are carried over
// into the new namespace and removed from the anonymous one.
func (s *templateService) SwitchUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.userID {
		return nil
	}

	anonymous := s.userID == ""
	carried := s.templates
	carriedCoords := s.lastCoords

	s.userID = id
	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	if !anonymous || id == "" {
		return nil
	}

	if s.lastCoords == nil && carriedCoords != nil {
		s.lastCoords = carriedCoords
		if err := s.saveCoordsLocked(ctx); err != nil {
			return err
		}
	}
	if len(carried) == 0 {
		return nil
	}

	s.templates = append(s.templates, carried...)
	if err := s.saveLocked(ctx); err != nil {
		return err
	}
	if err := s.repo.Set(ctx, StorageKey, "[]"); err != nil {
		return fmt.Errorf("clear anonymous templates: %w", err)
	}
	s.reporter.ReportStatus(fmt.Sprintf("%d template(s) moved to your account.", len(carried)))
	return nil
}

func (s *templateService) SetLastCoords(ctx context.Context, coords entity.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCoords = &coords
	return s.saveCoordsLocked(ctx)
}

func (s *templateService) LastCoords() (entity.Coordinate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCoords == nil {
		return entity.Coordinate{}, false
	}
	return *s.lastCoords, true
}

func (s *templateService) saveCoordsLocked(ctx context.Context) error {
	data, err := json.Marshal(s.lastCoords)
	if err != nil {
		return err
	}
	if err := s.repo.Set(ctx, s.namespaced(CoordsKey), string(data)); err != nil {
		return fmt.Errorf("save coordinates: %w", err)
	}
	return nil
}

// loadCoordsLocked returns nil for a missing or unusable stored coordinate.
func (s *templateService) loadCoordsLocked(ctx context.Context) *entity.Coordinate {
	raw, err := s.repo.Get(ctx, s.namespaced(CoordsKey), "")
	if err != nil || raw == "" {
		return nil
	}
	var c entity.Coordinate
	if err := json.Unmarshal([]byte(raw), &c); err != nil || !c.Valid() {
		logrus.Warnf("stored coordinates under %q are malformed, ignoring", s.namespaced(CoordsKey))
		return nil
	}
	return &c
}

func (s *templateService) SetUserID(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.userID != id
	s.userID = id
	return changed
}

func (s *templateService) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *templateService) ToggleTemplates(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	if enabled {
		s.reporter.ReportStatus("Templates enabled.")
	} else {
		s.reporter.ReportStatus("Templates disabled.")
	}
}

func (s *templateService) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

func (s *templateService) Templates() []entity.TemplateSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.TemplateSummary, 0, len(s.templates))
	for i, tpl := range s.templates {
		out = append(out, summarize(i, tpl))
	}
	return out
}

func (s *templateService) RemoveTemplate(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.templates) {
		return ErrIndexOutOfRange
	}
	name := s.templates[index].DisplayName
	s.templates = append(s.templates[:index:index], s.templates[index+1:]...)
	if err := s.saveLocked(ctx); err != nil {
		return err
	}
	s.reporter.ReportStatus(fmt.Sprintf("Template %q removed.", name))
	return nil
}

func (s *templateService) ClearTemplates(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = nil
	if err := s.saveLocked(ctx); err != nil {
		return err
	}
	s.reporter.ReportStatus("All templates removed.")
	return nil
}

func (s *templateService) storageKey() string {
	return s.namespaced(StorageKey)
}

func (s *templateService) namespaced(key string) string {
	if s.userID == "" {
		return key
	}
	return key + ":" + s.userID
}

func summarize(index int, tpl *processor.Template) entity.TemplateSummary {
	sum := entity.TemplateSummary{
		Index:       index,
		DisplayName: tpl.DisplayName,
		PixelCount:  tpl.PixelCount,
		Tiles:       tpl.TileKeys(),
	}
	if tpl.Coords != nil {
		sum.Coords = *tpl.Coords
	}
	return sum
}
