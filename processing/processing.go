package processing

import (
	"context"

	"img2img_alt/latent"
)

// SampleFunc replaces the host's default sampling step of an img2img request.
type SampleFunc func(ctx context.Context, conditioning, unconditional *latent.Tensor, seeds, subseeds []int64, subseedStrength float64) (*latent.Tensor, error)

// Img2Img is an image-to-image processing request. InitLatent is the encoded source image.
type Img2Img struct {
	SDModel Model
	State   *State

	InitLatent *latent.Tensor

	Prompt            string
	NegativePrompt    string
	Seed              int64
	Subseed           int64
	SubseedStrength   float64
	SamplerName       string
	Steps             int
	CFGScale          float64
	DenoisingStrength float64
	Width             int
	Height            int
	BatchSize         int
	BatchCount        int

	ExtraGenerationParams map[string]any

	Sample SampleFunc
}

// SetExtraGenerationParam records a key/value pair in the generation info of the output images.
func (p *Img2Img) SetExtraGenerationParam(key string, value any) {
	if p.ExtraGenerationParams == nil {
		p.ExtraGenerationParams = make(map[string]any)
	}
	p.ExtraGenerationParams[key] = value
}

type Processed struct {
	Samples               []*latent.Tensor
	Images                []string
	Seed                  int64
	Info                  string
	ExtraGenerationParams map[string]any
}
