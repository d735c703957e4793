package scripts

import (
	"context"

	"img2img_alt/processing"
)

// Script is a selectable generation script. The host shows the widgets from UI, then passes
// their current values to Run in the same order.
type Script interface {
	Title() string
	Show(isImg2Img bool) bool
	UI(isImg2Img bool) []Widget
	Run(ctx context.Context, p *processing.Img2Img, values ...any) (*processing.Processed, error)
}
