package entities

// Sampler is one entry of /sdapi/v1/samplers.
type Sampler struct {
	Name    string         `json:"name"`
	Aliases []string       `json:"aliases"`
	Options map[string]any `json:"options"`
}

func SamplerNames(samplers []Sampler) []string {
	names := make([]string, len(samplers))
	for i, s := range samplers {
		names[i] = s.Name
	}
	return names
}
