package img2imgalt

import (
	"context"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"

	"img2img_alt/inversion"
	"img2img_alt/latent"
	"img2img_alt/processing"
)

const (
	DefaultFingerprintScale     = 10
	DefaultFingerprintThreshold = 100
)

// CacheOptions control when a previous inversion is reused for a new source latent. Both values
// depend on the typical range of the model's latents.
type CacheOptions struct {
	// FingerprintScale multiplies the latent before truncating it to integers.
	FingerprintScale float64
	// Threshold is the exclusive upper bound on the summed absolute fingerprint difference.
	Threshold int
}

func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		FingerprintScale: DefaultFingerprintScale,
		Threshold:        DefaultFingerprintThreshold,
	}
}

type cached struct {
	noise                  *latent.Tensor
	cfgScale               float64
	steps                  int
	fingerprint            latent.Fingerprint
	originalPrompt         string
	originalNegativePrompt string
	sigmaAdjustment        bool
}

func (c *cached) sameParams(a Args) bool {
	return c.cfgScale == a.CFGScale &&
		c.steps == a.Steps &&
		c.originalPrompt == a.OriginalPrompt &&
		c.originalNegativePrompt == a.OriginalNegativePrompt &&
		c.sigmaAdjustment == a.SigmaAdjustment
}

// recoveredNoise returns the inverted noise of p.InitLatent, reusing the last result when the
// parameters are identical and the source latent is close enough.
func (s *Script) recoveredNoise(ctx context.Context, p *processing.Img2Img, a Args) (*latent.Tensor, error) {
	fingerprint := p.InitLatent.Fingerprint(s.cacheOptions.FingerprintScale)

	if s.cache != nil && s.cache.sameParams(a) && s.cache.fingerprint.Close(fingerprint, s.cacheOptions.Threshold) {
		log.Printf("Reusing cached noise %v for %q", s.cache.noise, a.OriginalPrompt)
		return s.cache.noise, nil
	}

	p.State.JobCount++

	prompts := make([]string, p.BatchSize)
	negatives := make([]string, p.BatchSize)
	for i := range p.BatchSize {
		prompts[i] = a.OriginalPrompt
		negatives[i] = a.OriginalNegativePrompt
	}
	cond, err := p.SDModel.GetLearnedConditioning(ctx, prompts)
	if err != nil {
		return nil, fmt.Errorf("error encoding original prompt: %w", err)
	}
	uncond, err := p.SDModel.GetLearnedConditioning(ctx, negatives)
	if err != nil {
		return nil, fmt.Errorf("error encoding original negative prompt: %w", err)
	}

	dnw, err := s.newDenoiser(p.SDModel)
	if err != nil {
		return nil, fmt.Errorf("error creating denoiser: %w", err)
	}
	engine, err := inversion.New(inversion.Config{
		Model:    p.SDModel,
		Denoiser: dnw,
		Preview:  s.host,
	})
	if err != nil {
		return nil, err
	}

	noise, err := engine.FindNoise(ctx, p.State, p.InitLatent, inversion.Params{
		Cond:            cond,
		Uncond:          uncond,
		CFGScale:        a.CFGScale,
		Steps:           a.Steps,
		SigmaAdjustment: a.SigmaAdjustment,
	})
	if err != nil {
		return nil, err
	}

	s.cache = &cached{
		noise:                  noise,
		cfgScale:               a.CFGScale,
		steps:                  a.Steps,
		fingerprint:            fingerprint,
		originalPrompt:         a.OriginalPrompt,
		originalNegativePrompt: a.OriginalNegativePrompt,
		sigmaAdjustment:        a.SigmaAdjustment,
	}
	log.Printf("Cached noise %v (%s) after %d decode steps", noise, humanize.IBytes(noise.Bytes()), a.Steps)

	return noise, nil
}
