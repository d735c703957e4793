// Package denoiser implements the discrete-time eps-prediction denoiser wrapper used by latent
// diffusion checkpoints: a noise schedule derived from the model's cumulative alphas together
// with the input/output scalings and sigma/timestep conversions samplers need.
package denoiser

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultTimesteps = 1000
	DefaultBetaStart = 0.00085
	DefaultBetaEnd   = 0.012
)

// CompVis wraps a model trained with a discrete DDPM schedule. Sigmas are ascending with the
// timestep index, matching alphas_cumprod order.
type CompVis struct {
	sigmas    []float64
	logSigmas []float64
	sigmaData float64
	quantize  bool
}

type Config struct {
	// AlphasCumprod is the model's cumulative product of alphas, one value per training timestep.
	AlphasCumprod []float64
	// Quantize rounds SigmaToT to the nearest training timestep instead of interpolating.
	Quantize bool
}

func New(cfg Config) (*CompVis, error) {
	if len(cfg.AlphasCumprod) < 2 {
		return nil, errors.New("missing alphas_cumprod")
	}

	d := &CompVis{
		sigmas:    make([]float64, len(cfg.AlphasCumprod)),
		logSigmas: make([]float64, len(cfg.AlphasCumprod)),
		sigmaData: 1,
		quantize:  cfg.Quantize,
	}
	for i, a := range cfg.AlphasCumprod {
		if a <= 0 || a >= 1 {
			return nil, fmt.Errorf("alphas_cumprod[%d] = %v is outside (0, 1)", i, a)
		}
		d.sigmas[i] = math.Sqrt((1 - a) / a)
		d.logSigmas[i] = math.Log(d.sigmas[i])
	}
	return d, nil
}

// ScaledLinearAlphasCumprod reproduces the "scaled_linear" beta schedule of Stable Diffusion
// checkpoints: betas are linear in sqrt space between betaStart and betaEnd.
func ScaledLinearAlphasCumprod(timesteps int, betaStart, betaEnd float64) []float64 {
	out := make([]float64, timesteps)
	start, end := math.Sqrt(betaStart), math.Sqrt(betaEnd)
	prod := 1.0
	for i := range timesteps {
		b := start
		if timesteps > 1 {
			b = start + (end-start)*float64(i)/float64(timesteps-1)
		}
		prod *= 1 - b*b
		out[i] = prod
	}
	return out
}

// Sigmas returns n noise levels evenly spaced in timestep from the largest sigma down to the
// smallest.
func (d *CompVis) Sigmas(n int) []float64 {
	if n <= 0 {
		return nil
	}
	tMax := float64(len(d.sigmas) - 1)
	out := make([]float64, n)
	for i := range n {
		t := tMax
		if n > 1 {
			t = tMax - tMax*float64(i)/float64(n-1)
		}
		out[i] = d.TToSigma(t)
	}
	return out
}

// Scalings returns c_out and c_in for every sigma of the batch.
func (d *CompVis) Scalings(sigma []float64) (cOut, cIn []float64) {
	cOut = make([]float64, len(sigma))
	cIn = make([]float64, len(sigma))
	for i, s := range sigma {
		cOut[i] = -s
		cIn[i] = 1 / math.Sqrt(s*s+d.sigmaData*d.sigmaData)
	}
	return cOut, cIn
}

// SigmaToT maps noise levels to (fractional) model timesteps by interpolating in log-sigma.
func (d *CompVis) SigmaToT(sigma []float64) []float64 {
	out := make([]float64, len(sigma))
	for i, s := range sigma {
		out[i] = d.sigmaToT(s)
	}
	return out
}

func (d *CompVis) sigmaToT(sigma float64) float64 {
	logSigma := math.Log(sigma)

	if d.quantize {
		best, bestDist := 0, math.Inf(1)
		for i, ls := range d.logSigmas {
			if dist := math.Abs(logSigma - ls); dist < bestDist {
				best, bestDist = i, dist
			}
		}
		return float64(best)
	}

	low := 0
	for i, ls := range d.logSigmas {
		if logSigma-ls >= 0 {
			low = i
		}
	}
	low = min(low, len(d.logSigmas)-2)
	high := low + 1

	lo, hi := d.logSigmas[low], d.logSigmas[high]
	w := (lo - logSigma) / (lo - hi)
	w = max(0, min(1, w))
	return (1-w)*float64(low) + w*float64(high)
}

func (d *CompVis) TToSigma(t float64) float64 {
	low, high := int(math.Floor(t)), int(math.Ceil(t))
	w := t - math.Floor(t)
	logSigma := (1-w)*d.logSigmas[low] + w*d.logSigmas[high]
	return math.Exp(logSigma)
}
