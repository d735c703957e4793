package stable_diffusion_api

import (
	"context"

	"img2img_alt/entities"
	"img2img_alt/scripts/img2imgalt"
)

type StableDiffusionAPI interface {
	Host(url ...string) string
	Alive() bool
	ImageToImageRequest(ctx context.Context, req *entities.ImageToImageRequest) (*entities.ImageToImageResponse, error)
	RunScript(ctx context.Context, req *entities.ImageToImageRequest, title string, values []any) (*entities.ImageToImageResponse, error)
	AlternativeTest(ctx context.Context, req *entities.ImageToImageRequest, args img2imgalt.Args) (*entities.ImageToImageResponse, error)
	GetProgress(ctx context.Context) (*entities.Progress, error)
	Interrupt(ctx context.Context) error
	GetSamplers(ctx context.Context) (Samplers, error)
	GetMemory(ctx context.Context) (*entities.Memory, error)
}
