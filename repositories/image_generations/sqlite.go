package image_generations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"img2img_alt/clock"
	"img2img_alt/entities"
)

const insertGenerationQuery string = `
INSERT INTO image_generations (prompt, negative_prompt, seed, sampler_name, steps, cfg_scale,
                               width, height,
                               decode_prompt, decode_negative_prompt, decode_cfg_scale, decode_steps,
                               randomness, sigma_adjustment, info, created_at) VALUES
                            (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

const selectGenerationColumns string = `
SELECT id, prompt, negative_prompt, seed, sampler_name, steps, cfg_scale,
       width, height,
       decode_prompt, decode_negative_prompt, decode_cfg_scale, decode_steps,
       randomness, sigma_adjustment, info, created_at FROM image_generations`

const getGenerationByID string = selectGenerationColumns + ` WHERE id = ?;`

const listGenerations string = selectGenerationColumns + ` ORDER BY created_at DESC, id DESC LIMIT ?;`

var ErrNotFound = errors.New("generation not found")

type sqliteRepo struct {
	dbConn *sql.DB
	clock  clock.Clock
}

type Config struct {
	DB *sql.DB
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

func NewRepository(cfg *Config) (Repository, error) {
	if cfg.DB == nil {
		return nil, errors.New("missing DB parameter")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}

	return &sqliteRepo{
		dbConn: cfg.DB,
		clock:  cfg.Clock,
	}, nil
}

func (repo *sqliteRepo) Create(ctx context.Context, generation *entities.Generation) (*entities.Generation, error) {
	if generation.CreatedAt.IsZero() {
		generation.CreatedAt = repo.clock.Now()
	}

	d := generation.Decode
	res, err := repo.dbConn.ExecContext(ctx, insertGenerationQuery,
		generation.Prompt, generation.NegativePrompt, generation.Seed, generation.SamplerName, generation.Steps, generation.CFGScale,
		generation.Width, generation.Height,
		d.Prompt, d.NegativePrompt, d.CFGScale, d.Steps,
		d.Randomness, d.SigmaAdjustment, generation.Info, generation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	lastID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	generation.ID = lastID

	return generation, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row scanner) (*entities.Generation, error) {
	var generation entities.Generation
	d := &generation.Decode
	err := row.Scan(
		&generation.ID, &generation.Prompt, &generation.NegativePrompt, &generation.Seed, &generation.SamplerName, &generation.Steps, &generation.CFGScale,
		&generation.Width, &generation.Height,
		&d.Prompt, &d.NegativePrompt, &d.CFGScale, &d.Steps,
		&d.Randomness, &d.SigmaAdjustment, &generation.Info, &generation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &generation, nil
}

func (repo *sqliteRepo) GetByID(ctx context.Context, id int64) (*entities.Generation, error) {
	generation, err := scanGeneration(repo.dbConn.QueryRowContext(ctx, getGenerationByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return generation, err
}

func (repo *sqliteRepo) List(ctx context.Context, limit int) ([]*entities.Generation, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid limit %d", limit)
	}

	rows, err := repo.dbConn.QueryContext(ctx, listGenerations, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var generations []*entities.Generation
	for rows.Next() {
		generation, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		generations = append(generations, generation)
	}
	return generations, rows.Err()
}
