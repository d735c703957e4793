package stable_diffusion_api

import (
	"context"
	"log"

	"img2img_alt/entities"
	"img2img_alt/samplers"
)

type Samplers []entities.Sampler

// String is what we fuzzy match against
func (s Samplers) String(i int) string {
	return s[i].Name
}

func (s Samplers) Len() int {
	return len(s)
}

func (s Samplers) Names() []string {
	return entities.SamplerNames(s)
}

// Resolve returns the sampler name the WebUI knows for a loosely typed name.
func (s Samplers) Resolve(name string) (string, error) {
	return samplers.Resolve(s.Names(), name)
}

// GetSamplers fetches /sdapi/v1/samplers once and serves later calls from memory.
func (api *apiImplementation) GetSamplers(ctx context.Context) (Samplers, error) {
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.samplers != nil {
		return api.samplers, nil
	}

	list, err := GET[Samplers](ctx, api.client, api.Host("/sdapi/v1/samplers"))
	if err != nil {
		return nil, err
	}
	api.samplers = *list
	if len(api.samplers) > 2 {
		log.Printf("Successfully cached %v samplers from api: %v...", len(api.samplers), api.samplers.String(0))
	}
	return api.samplers, nil
}
