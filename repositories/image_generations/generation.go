package image_generations

import (
	"img2img_alt/entities"
	"img2img_alt/scripts/img2imgalt"
)

// FromResponse builds the record for a finished run. Seed and sampler come from the response
// info, since the WebUI resolves a random seed and advances it before sampling.
func FromResponse(req *entities.ImageToImageRequest, args img2imgalt.Args, resp *entities.ImageToImageResponse) (*entities.Generation, error) {
	info, err := resp.ParseInfo()
	if err != nil {
		return nil, err
	}

	generation := &entities.Generation{
		Prompt:      req.Prompt,
		Seed:        info.Seed,
		SamplerName: info.SamplerName,
		Steps:       info.Steps,
		CFGScale:    info.CFGScale,
		Decode: entities.Decode{
			Prompt:          args.OriginalPrompt,
			NegativePrompt:  args.OriginalNegativePrompt,
			CFGScale:        args.CFGScale,
			Steps:           args.Steps,
			Randomness:      args.Randomness,
			SigmaAdjustment: args.SigmaAdjustment,
		},
		Info: resp.Info,
	}
	if req.NegativePrompt != nil {
		generation.NegativePrompt = *req.NegativePrompt
	}
	if req.Width != nil {
		generation.Width = *req.Width
	}
	if req.Height != nil {
		generation.Height = *req.Height
	}
	return generation, nil
}
