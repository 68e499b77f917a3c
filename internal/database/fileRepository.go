package database

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"regexp"
	"strings"

	"github.com/ds124wfegd/tile-overlay/internal/pkg/storage"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

type fileTemplateRepository struct {
	storage storage.FileStorage
}

func NewFileRepository(storage storage.FileStorage) TemplateRepository {
	return &fileTemplateRepository{storage: storage}
}

func (r *fileTemplateRepository) Get(ctx context.Context, key, def string) (string, error) {
	reader, err := r.storage.Get(r.valuePath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return def, nil
		}
		return "", err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *fileTemplateRepository) Set(ctx context.Context, key, value string) error {
	return r.storage.Save(r.valuePath(key), strings.NewReader(value))
}

func (r *fileTemplateRepository) valuePath(key string) string {
	return "values/" + unsafeKeyChars.ReplaceAllString(key, "_") + ".json"
}
