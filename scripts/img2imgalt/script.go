// Package img2imgalt implements "img2img alternative test": the source image latent is run
// backwards through the sampler schedule to recover the noise that produces it, and the
// regenerated image starts from that noise blended with fresh randomness.
package img2imgalt

import (
	"context"
	"errors"
	"fmt"

	"img2img_alt/denoiser"
	"img2img_alt/inversion"
	"img2img_alt/latent"
	"img2img_alt/processing"
	"img2img_alt/samplers"
	"img2img_alt/scripts"
)

const Title = "img2img alternative test"

// Extra generation parameter keys recorded on every run.
const (
	ParamDecodePrompt         = "Decode prompt"
	ParamDecodeNegativePrompt = "Decode negative prompt"
	ParamDecodeCFGScale       = "Decode CFG scale"
	ParamDecodeSteps          = "Decode steps"
	ParamRandomness           = "Randomness"
	ParamSigmaAdjustment      = "Sigma Adjustment"
)

// DenoiserFactory builds the denoiser wrapper used for inversion from the loaded model.
type DenoiserFactory func(model processing.Model) (inversion.Denoiser, error)

type Config struct {
	Host  processing.Host
	Cache CacheOptions
	// NewDenoiser defaults to a CompVis denoiser over the model's alphas_cumprod.
	NewDenoiser DenoiserFactory
}

// Script keeps the last inversion result so repeated runs on the same image skip the reverse
// pass. One Script must not run two requests at once.
type Script struct {
	host         processing.Host
	cacheOptions CacheOptions
	newDenoiser  DenoiserFactory

	cache *cached
}

var _ scripts.Script = (*Script)(nil)

func New(cfg Config) (*Script, error) {
	if cfg.Host == nil {
		return nil, errors.New("missing host")
	}
	if cfg.Cache == (CacheOptions{}) {
		cfg.Cache = DefaultCacheOptions()
	}
	if cfg.Cache.FingerprintScale <= 0 {
		return nil, fmt.Errorf("fingerprint scale must be positive, got %v", cfg.Cache.FingerprintScale)
	}
	if cfg.NewDenoiser == nil {
		cfg.NewDenoiser = compVisDenoiser
	}
	return &Script{
		host:         cfg.Host,
		cacheOptions: cfg.Cache,
		newDenoiser:  cfg.NewDenoiser,
	}, nil
}

func compVisDenoiser(model processing.Model) (inversion.Denoiser, error) {
	return denoiser.New(denoiser.Config{AlphasCumprod: model.AlphasCumprod()})
}

func (s *Script) Title() string { return Title }

func (s *Script) Show(isImg2Img bool) bool { return isImg2Img }

func (s *Script) UI(bool) []scripts.Widget {
	return []scripts.Widget{
		scripts.NewTextbox("Original prompt", 1),
		scripts.NewTextbox("Original negative prompt", 1),
		scripts.NewSlider("Decode CFG scale", 0.0, 15.0, 0.1, 1.0),
		scripts.NewSlider("Decode steps", 1, 150, 1, 50),
		scripts.NewSlider("Randomness", 0.0, 1.0, 0.01, 0.0),
		scripts.NewCheckbox("Sigma adjustment for finding noise for image", false),
	}
}

// Run parses the widget values and runs the request with RunArgs.
func (s *Script) Run(ctx context.Context, p *processing.Img2Img, values ...any) (*processing.Processed, error) {
	a, err := ParseArgs(values...)
	if err != nil {
		return nil, err
	}
	return s.RunArgs(ctx, p, a)
}

// RunArgs forces a single image per request, replaces the sampling step with the inverted-noise
// sampler and hands p to the host. The host's result is returned as is.
func (s *Script) RunArgs(ctx context.Context, p *processing.Img2Img, a Args) (*processing.Processed, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if p.InitLatent == nil {
		return nil, errors.New("missing init latent")
	}
	if p.SDModel == nil {
		return nil, errors.New("missing model")
	}
	if p.State == nil {
		p.State = processing.NewState()
	}

	p.BatchSize = 1
	p.BatchCount = 1

	p.Sample = func(ctx context.Context, conditioning, unconditional *latent.Tensor, _, _ []int64, _ float64) (*latent.Tensor, error) {
		return s.sample(ctx, p, a, conditioning, unconditional)
	}

	p.SetExtraGenerationParam(ParamDecodePrompt, a.OriginalPrompt)
	p.SetExtraGenerationParam(ParamDecodeNegativePrompt, a.OriginalNegativePrompt)
	p.SetExtraGenerationParam(ParamDecodeCFGScale, a.CFGScale)
	p.SetExtraGenerationParam(ParamDecodeSteps, a.Steps)
	p.SetExtraGenerationParam(ParamRandomness, a.Randomness)
	p.SetExtraGenerationParam(ParamSigmaAdjustment, a.SigmaAdjustment)

	return s.host.ProcessImages(ctx, p)
}

func (s *Script) sample(ctx context.Context, p *processing.Img2Img, a Args, conditioning, unconditional *latent.Tensor) (*latent.Tensor, error) {
	recovered, err := s.recoveredNoise(ctx, p, a)
	if err != nil {
		return nil, err
	}

	batch := p.InitLatent.Batch()
	seeds := make([]int64, batch)
	for i := range seeds {
		seeds[i] = p.Seed + int64(i) + 1
	}
	random, err := s.host.CreateRandomTensors(p.InitLatent.Shape[1:], seeds)
	if err != nil {
		return nil, fmt.Errorf("error creating random noise: %w", err)
	}

	combined, err := Blend(recovered, random, a.Randomness)
	if err != nil {
		return nil, err
	}

	index, err := samplers.Index(s.host.Samplers(), p.SamplerName)
	if err != nil {
		return nil, err
	}
	sampler, err := s.host.CreateSampler(index, p.SDModel)
	if err != nil {
		return nil, fmt.Errorf("error creating sampler %q: %w", p.SamplerName, err)
	}
	sigmas := sampler.Sigmas(p.Steps)
	if len(sigmas) == 0 {
		return nil, fmt.Errorf("sampler %q returned no sigmas for %d steps", p.SamplerName, p.Steps)
	}

	noise, err := samplerNoise(combined, p.InitLatent, sigmas[0])
	if err != nil {
		return nil, err
	}

	p.Seed++

	return sampler.SampleImg2Img(ctx, p, p.InitLatent, noise, conditioning, unconditional)
}
