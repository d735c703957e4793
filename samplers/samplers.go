package samplers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

var ErrUnknownSampler = errors.New("unknown sampler")

// Default is the sampler list of a stock web UI install, in index order.
var Default = []string{
	"Euler a",
	"Euler",
	"LMS",
	"Heun",
	"DPM2",
	"DPM2 a",
	"DPM++ 2S a",
	"DPM++ 2M",
	"DPM++ SDE",
	"DPM fast",
	"DPM adaptive",
	"LMS Karras",
	"DPM2 Karras",
	"DPM2 a Karras",
	"DPM++ 2S a Karras",
	"DPM++ 2M Karras",
	"DPM++ SDE Karras",
	"DDIM",
	"PLMS",
	"UniPC",
}

// Index resolves a sampler name to its index in names. An exact match wins, then a
// case-insensitive one, then the best fuzzy match.
func Index(names []string, name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnknownSampler)
	}
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i, nil
		}
	}
	results := fuzzy.Find(name, names)
	if len(results) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSampler, name)
	}
	return results[0].Index, nil
}

// Resolve is Index returning the matched name.
func Resolve(names []string, name string) (string, error) {
	i, err := Index(names, name)
	if err != nil {
		return "", err
	}
	return names[i], nil
}
