package database

import (
	"context"
)

// TemplateRepository is the durable string store the template list is saved
// into. Get returns def when the key has never been written.
type TemplateRepository interface {
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string) error
}
