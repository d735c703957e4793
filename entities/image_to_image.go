package entities

import "encoding/json"

// ImageToImageRequest is the body of /sdapi/v1/img2img. ScriptName selects a selectable script
// by title and ScriptArgs carries its widget values in UI order.
type ImageToImageRequest struct {
	BatchSize         int            `json:"batch_size,omitempty"`
	CFGScale          *float64       `json:"cfg_scale,omitempty"`
	Comments          map[string]any `json:"comments,omitempty"`
	DenoisingStrength *float64       `json:"denoising_strength,omitempty"`
	DoNotSaveGrid     *bool          `json:"do_not_save_grid,omitempty"`
	DoNotSaveSamples  *bool          `json:"do_not_save_samples,omitempty"`
	Height            *int           `json:"height,omitempty"`
	IncludeInitImages *bool          `json:"include_init_images,omitempty"`
	InitImages        []string       `json:"init_images,omitempty"`
	NIter             int            `json:"n_iter,omitempty"`
	NegativePrompt    *string        `json:"negative_prompt,omitempty"`
	Prompt            string         `json:"prompt"`
	ResizeMode        *int64         `json:"resize_mode,omitempty"`
	SamplerName       *string        `json:"sampler_name,omitempty"`
	SaveImages        *bool          `json:"save_images,omitempty"`
	ScriptArgs        []any          `json:"script_args,omitempty"`
	ScriptName        *string        `json:"script_name,omitempty"`
	Seed              *int64         `json:"seed,omitempty"`
	SendImages        *bool          `json:"send_images,omitempty"`
	Steps             *int           `json:"steps,omitempty"`
	Subseed           *int64         `json:"subseed,omitempty"`
	SubseedStrength   *float64       `json:"subseed_strength,omitempty"`
	Width             *int           `json:"width,omitempty"`
}

type ImageToImageResponse struct {
	// The generated images in base64 format.
	Images     []string       `json:"images,omitempty"`
	Info       string         `json:"info"`
	Parameters map[string]any `json:"parameters"`
}

// Info is the subset of the response's info JSON that is kept with a generation.
type Info struct {
	Seed                  int64          `json:"seed"`
	AllSeeds              []int64        `json:"all_seeds"`
	SamplerName           string         `json:"sampler_name"`
	Steps                 int            `json:"steps"`
	CFGScale              float64        `json:"cfg_scale"`
	ExtraGenerationParams map[string]any `json:"extra_generation_params"`
}

// ParseInfo decodes the response's info string.
func (r *ImageToImageResponse) ParseInfo() (*Info, error) {
	var info Info
	if err := json.Unmarshal([]byte(r.Info), &info); err != nil {
		return nil, err
	}
	return &info, nil
}
