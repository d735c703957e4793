package entities

import "time"

// Generation is a stored record of one img2img alternative test run.
type Generation struct {
	ID             int64     `json:"id"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt"`
	Seed           int64     `json:"seed"`
	SamplerName    string    `json:"sampler_name"`
	Steps          int       `json:"steps"`
	CFGScale       float64   `json:"cfg_scale"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Decode         Decode    `json:"decode"`
	Info           string    `json:"info"`
	CreatedAt      time.Time `json:"created_at"`
}

// Decode holds the six script parameters used to recover the noise.
type Decode struct {
	Prompt          string  `json:"prompt"`
	NegativePrompt  string  `json:"negative_prompt"`
	CFGScale        float64 `json:"cfg_scale"`
	Steps           int     `json:"steps"`
	Randomness      float64 `json:"randomness"`
	SigmaAdjustment bool    `json:"sigma_adjustment"`
}
