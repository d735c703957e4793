package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

const DefaultPath = "img2img_alt.db"

// migrations run in order; every statement must be safe to repeat.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS image_generations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prompt TEXT NOT NULL,
		negative_prompt TEXT NOT NULL DEFAULT '',
		seed INTEGER NOT NULL,
		sampler_name TEXT NOT NULL,
		steps INTEGER NOT NULL,
		cfg_scale REAL NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		decode_prompt TEXT NOT NULL DEFAULT '',
		decode_negative_prompt TEXT NOT NULL DEFAULT '',
		decode_cfg_scale REAL NOT NULL,
		decode_steps INTEGER NOT NULL,
		randomness REAL NOT NULL,
		sigma_adjustment INTEGER NOT NULL DEFAULT 0,
		info TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS image_generations_created_at ON image_generations (created_at);`,
}

// New opens the database at path, ":memory:" included, and migrates the schema.
func New(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("missing database path")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Printf("Opened sqlite database %s", path)
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("error running migration %d: %w", i, err)
		}
	}
	return nil
}
