package image_generations

import (
	"context"

	"img2img_alt/entities"
)

type Repository interface {
	Create(ctx context.Context, generation *entities.Generation) (*entities.Generation, error)
	GetByID(ctx context.Context, id int64) (*entities.Generation, error)
	// List returns the most recent generations first.
	List(ctx context.Context, limit int) ([]*entities.Generation, error)
}
