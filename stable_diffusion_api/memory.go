package stable_diffusion_api

import (
	"context"

	"github.com/shirou/gopsutil/mem"

	"img2img_alt/entities"
)

func (api *apiImplementation) GetMemory(ctx context.Context) (*entities.Memory, error) {
	return GET[entities.Memory](ctx, api.client, api.Host("/sdapi/v1/memory"))
}

// GetMemory returns the memory usage of this machine as reported by the system, not the API.
func GetMemory() (*entities.Memory, error) {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}

	return &entities.Memory{
		RAM: entities.RAM{
			Free:  float64(vmem.Free),
			Used:  float64(vmem.Used),
			Total: float64(vmem.Total),
		},
	}, nil
}
