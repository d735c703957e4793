package scripts

type WidgetKind int

const (
	Textbox WidgetKind = iota
	Slider
	Checkbox
)

func (k WidgetKind) String() string {
	switch k {
	case Textbox:
		return "textbox"
	case Slider:
		return "slider"
	case Checkbox:
		return "checkbox"
	default:
		return "unknown"
	}
}

// Widget describes one input control. Min, Max and Step only apply to sliders, Lines only to
// textboxes. Value holds the default: string, float64, int or bool.
type Widget struct {
	Kind  WidgetKind
	Label string
	Lines int
	Min   float64
	Max   float64
	Step  float64
	Value any
}

func NewTextbox(label string, lines int) Widget {
	return Widget{Kind: Textbox, Label: label, Lines: lines, Value: ""}
}

// NewSlider declares a slider. An integer default makes the slider integer valued.
func NewSlider[T int | float64](label string, minimum, maximum, step float64, value T) Widget {
	return Widget{Kind: Slider, Label: label, Min: minimum, Max: maximum, Step: step, Value: value}
}

func NewCheckbox(label string, value bool) Widget {
	return Widget{Kind: Checkbox, Label: label, Value: value}
}

// Integer reports whether a slider only takes whole values.
func (w Widget) Integer() bool {
	_, ok := w.Value.(int)
	return ok
}

// Defaults returns the default value of every widget, in order.
func Defaults(widgets []Widget) []any {
	values := make([]any, len(widgets))
	for i, w := range widgets {
		values[i] = w.Value
	}
	return values
}
