package img2imgalt

import (
	"context"

	"img2img_alt/denoiser"
	"img2img_alt/latent"
	"img2img_alt/processing"
	"img2img_alt/samplers"
)

// fakeModel predicts eps = 0.1*x + 0.001*t + cond[0] and encodes a prompt as its length.
type fakeModel struct {
	forward      int
	conditioning int
	fail         error
}

func (m *fakeModel) ApplyModel(_ context.Context, x *latent.Tensor, t []float64, cond *latent.Tensor) (*latent.Tensor, error) {
	m.forward++
	if m.fail != nil {
		return nil, m.fail
	}
	out := latent.New(x.Shape...)
	n, cn := x.SampleLen(), cond.SampleLen()
	for b := range x.Batch() {
		for j := range n {
			out.Data[b*n+j] = 0.1*x.Data[b*n+j] + 0.001*t[b] + cond.Data[b*cn]
		}
	}
	return out, nil
}

func (m *fakeModel) GetLearnedConditioning(_ context.Context, prompts []string) (*latent.Tensor, error) {
	m.conditioning++
	out := latent.New(len(prompts), 1, 2)
	for i, p := range prompts {
		out.Data[2*i] = float64(len(p)) / 10
		out.Data[2*i+1] = 1
	}
	return out, nil
}

func (m *fakeModel) AlphasCumprod() []float64 {
	return denoiser.ScaledLinearAlphasCumprod(denoiser.DefaultTimesteps, denoiser.DefaultBetaStart, denoiser.DefaultBetaEnd)
}

type sampleCall struct {
	samplerIndex int
	initLatent   *latent.Tensor
	noise        *latent.Tensor
	seed         int64
}

type fakeSampler struct {
	host  *fakeHost
	index int
}

func (s *fakeSampler) Sigmas(steps int) []float64 {
	d, _ := denoiser.New(denoiser.Config{AlphasCumprod: (&fakeModel{}).AlphasCumprod()})
	return d.Sigmas(steps)
}

func (s *fakeSampler) SampleImg2Img(_ context.Context, p *processing.Img2Img, initLatent, noise, _, _ *latent.Tensor) (*latent.Tensor, error) {
	s.host.sampled = append(s.host.sampled, sampleCall{
		samplerIndex: s.index,
		initLatent:   initLatent,
		noise:        noise,
		seed:         p.Seed,
	})
	return noise, nil
}

type fakeHost struct {
	randomSeeds [][]int64
	sampled     []sampleCall
	previews    int
}

func (h *fakeHost) ProcessImages(ctx context.Context, p *processing.Img2Img) (*processing.Processed, error) {
	cond, err := p.SDModel.GetLearnedConditioning(ctx, []string{p.Prompt})
	if err != nil {
		return nil, err
	}
	uncond, err := p.SDModel.GetLearnedConditioning(ctx, []string{p.NegativePrompt})
	if err != nil {
		return nil, err
	}
	sample, err := p.Sample(ctx, cond, uncond, []int64{p.Seed}, []int64{p.Subseed}, p.SubseedStrength)
	if err != nil {
		return nil, err
	}
	return &processing.Processed{
		Samples:               []*latent.Tensor{sample},
		Seed:                  p.Seed,
		ExtraGenerationParams: p.ExtraGenerationParams,
	}, nil
}

// CreateRandomTensors fills each batch element from its seed so results are reproducible.
func (h *fakeHost) CreateRandomTensors(shape []int, seeds []int64) (*latent.Tensor, error) {
	h.randomSeeds = append(h.randomSeeds, seeds)
	out := latent.New(append([]int{len(seeds)}, shape...)...)
	n := out.SampleLen()
	for b, seed := range seeds {
		for j := range n {
			out.Data[b*n+j] = float64((seed*31+int64(j)*17)%13)/6 - 1
		}
	}
	return out, nil
}

func (h *fakeHost) CreateSampler(index int, _ processing.Model) (processing.Sampler, error) {
	return &fakeSampler{host: h, index: index}, nil
}

func (h *fakeHost) Samplers() []string { return samplers.Default }

func (h *fakeHost) StoreLatent(*latent.Tensor) { h.previews++ }
