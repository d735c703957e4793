package discord_bot

import (
	"context"
	"errors"

	"img2img_alt/latent"
	"img2img_alt/processing"
	"img2img_alt/samplers"
)

var errRemote = errors.New("img2img alternative test runs on the WebUI")

// remoteHost stands in for the processing host when the script is only used to describe its
// options; the actual run is submitted to the WebUI.
type remoteHost struct{}

func (remoteHost) ProcessImages(context.Context, *processing.Img2Img) (*processing.Processed, error) {
	return nil, errRemote
}

func (remoteHost) CreateRandomTensors([]int, []int64) (*latent.Tensor, error) { return nil, errRemote }

func (remoteHost) CreateSampler(int, processing.Model) (processing.Sampler, error) {
	return nil, errRemote
}

func (remoteHost) Samplers() []string { return samplers.Default }

func (remoteHost) StoreLatent(*latent.Tensor) {}
