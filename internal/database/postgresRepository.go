package database

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"
)

const createKVTable = `CREATE TABLE IF NOT EXISTS overlay_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type postgresTemplateRepository struct {
	db *sql.DB
}

func NewPostgresDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgresRepository(ctx context.Context, db *sql.DB) (TemplateRepository, error) {
	if _, err := db.ExecContext(ctx, createKVTable); err != nil {
		return nil, err
	}
	return &postgresTemplateRepository{db: db}, nil
}

func (r *postgresTemplateRepository) Get(ctx context.Context, key, def string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM overlay_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *postgresTemplateRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO overlay_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return err
}
