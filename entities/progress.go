package entities

type Progress struct {
	// The current image in base64 format. opts.show_progress_every_n_steps is required for this to work.
	CurrentImage *string `json:"current_image,omitempty"`
	EtaRelative  float64 `json:"eta_relative"`
	// The progress with a range of 0 to 1
	Progress float64 `json:"progress"`
	State    State   `json:"state"`
	// Info text used by WebUI.
	Textinfo *string `json:"textinfo,omitempty"`
}

// State mirrors the WebUI's shared job state, including the extra job the inversion adds.
type State struct {
	Skipped       bool   `json:"skipped"`
	Interrupted   bool   `json:"interrupted"`
	Job           string `json:"job"`
	JobCount      int64  `json:"job_count"`
	JobTimestamp  string `json:"job_timestamp"`
	JobNo         int64  `json:"job_no"`
	SamplingStep  int64  `json:"sampling_step"`
	SamplingSteps int64  `json:"sampling_steps"`
}

// Done reports whether the WebUI is idle.
func (p *Progress) Done() bool {
	return p.State.JobCount == 0 && p.Progress == 0
}
