package img2imgalt

import (
	"errors"
	"fmt"
	"math"

	"img2img_alt/inversion"
)

var (
	ErrInvalidArgs       = errors.New("invalid script arguments")
	ErrInvalidRandomness = errors.New("invalid parameter: randomness must be between 0 and 1")
)

// Args are the values of the script's six widgets, in UI order.
type Args struct {
	OriginalPrompt         string
	OriginalNegativePrompt string
	CFGScale               float64
	Steps                  int
	Randomness             float64
	SigmaAdjustment        bool
}

func DefaultArgs() Args {
	return Args{
		CFGScale: 1.0,
		Steps:    50,
	}
}

// ParseArgs converts raw widget values into Args. Numbers may arrive as any integer or float type.
func ParseArgs(values ...any) (Args, error) {
	var a Args
	if len(values) != 6 {
		return a, fmt.Errorf("%w: expected 6 values, got %d", ErrInvalidArgs, len(values))
	}

	var ok bool
	if a.OriginalPrompt, ok = values[0].(string); !ok {
		return a, fmt.Errorf("%w: original prompt must be a string, got %T", ErrInvalidArgs, values[0])
	}
	if a.OriginalNegativePrompt, ok = values[1].(string); !ok {
		return a, fmt.Errorf("%w: original negative prompt must be a string, got %T", ErrInvalidArgs, values[1])
	}

	var err error
	if a.CFGScale, err = toFloat(values[2]); err != nil {
		return a, fmt.Errorf("%w: decode cfg scale: %w", ErrInvalidArgs, err)
	}
	steps, err := toFloat(values[3])
	if err != nil {
		return a, fmt.Errorf("%w: decode steps: %w", ErrInvalidArgs, err)
	}
	if steps != math.Trunc(steps) {
		return a, fmt.Errorf("%w: decode steps must be a whole number, got %v", ErrInvalidArgs, steps)
	}
	a.Steps = int(steps)
	if a.Randomness, err = toFloat(values[4]); err != nil {
		return a, fmt.Errorf("%w: randomness: %w", ErrInvalidArgs, err)
	}
	if a.SigmaAdjustment, ok = values[5].(bool); !ok {
		return a, fmt.Errorf("%w: sigma adjustment must be a bool, got %T", ErrInvalidArgs, values[5])
	}
	return a, nil
}

// Values returns the arguments in UI order, the inverse of ParseArgs.
func (a Args) Values() []any {
	return []any{a.OriginalPrompt, a.OriginalNegativePrompt, a.CFGScale, a.Steps, a.Randomness, a.SigmaAdjustment}
}

func (a Args) Validate() error {
	if a.Steps < 1 {
		return fmt.Errorf("%w, got %d", inversion.ErrInvalidSteps, a.Steps)
	}
	if !(a.Randomness >= 0 && a.Randomness <= 1) {
		return fmt.Errorf("%w, got %v", ErrInvalidRandomness, a.Randomness)
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
