package processing

import (
	"context"

	"img2img_alt/latent"
)

// Model is the diffusion model as seen by scripts.
type Model interface {
	// ApplyModel runs one forward pass and returns the predicted noise for x at timesteps t.
	ApplyModel(ctx context.Context, x *latent.Tensor, t []float64, cond *latent.Tensor) (*latent.Tensor, error)
	// GetLearnedConditioning encodes one prompt per batch element.
	GetLearnedConditioning(ctx context.Context, prompts []string) (*latent.Tensor, error)
	// AlphasCumprod is the cumulative alpha product of the training noise schedule.
	AlphasCumprod() []float64
}

// Sampler is a forward sampler created by the host for a single request.
type Sampler interface {
	// Sigmas returns the sampler's descending noise schedule for the given step count.
	Sigmas(steps int) []float64
	SampleImg2Img(ctx context.Context, p *Img2Img, initLatent, noise, conditioning, unconditional *latent.Tensor) (*latent.Tensor, error)
}

type Host interface {
	// ProcessImages runs the full generation pipeline for p, calling p.Sample when it is set.
	ProcessImages(ctx context.Context, p *Img2Img) (*Processed, error)
	// CreateRandomTensors returns one random latent of the given per-sample shape for every
	// seed, stacked along the batch dimension.
	CreateRandomTensors(shape []int, seeds []int64) (*latent.Tensor, error)
	// CreateSampler builds the sampler at index of Samplers().
	CreateSampler(index int, model Model) (Sampler, error)
	Samplers() []string
	// StoreLatent publishes an intermediate latent for live previews.
	StoreLatent(x *latent.Tensor)
}
