package img2imgalt

import (
	"fmt"
	"math"

	"img2img_alt/latent"
)

// Blend mixes the recovered noise with random noise. The denominator keeps the variance of the
// result at that of the inputs, so randomness 0 returns recovered and 1 returns random.
func Blend(recovered, random *latent.Tensor, randomness float64) (*latent.Tensor, error) {
	if !recovered.SameShape(random) {
		return nil, fmt.Errorf("%w: recovered noise %v vs random noise %v", latent.ErrShapeMismatch, recovered.Shape, random.Shape)
	}
	r := randomness
	norm := math.Sqrt(r*r + (1-r)*(1-r))

	out := latent.New(recovered.Shape...)
	for i := range out.Data {
		out.Data[i] = ((1-r)*recovered.Data[i] + r*random.Data[i]) / norm
	}
	return out, nil
}

// samplerNoise converts blended noise into the delta the img2img sampler adds to the init latent.
func samplerNoise(combined, initLatent *latent.Tensor, sigma0 float64) (*latent.Tensor, error) {
	if !combined.SameShape(initLatent) {
		return nil, fmt.Errorf("%w: noise %v vs init latent %v", latent.ErrShapeMismatch, combined.Shape, initLatent.Shape)
	}
	out := latent.New(combined.Shape...)
	for i := range out.Data {
		out.Data[i] = combined.Data[i] - initLatent.Data[i]/sigma0
	}
	return out, nil
}
