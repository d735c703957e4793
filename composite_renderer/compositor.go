package composite_renderer

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"io"
	"math"
)

type compositor struct {
	// layout defaults to determineLayout.
	layout func(numImages int, images []image.Image) (rows, cols int)
}

func (c *compositor) TileImages(imageBufs []io.Reader) (io.Reader, error) {
	numImages := len(imageBufs)
	if numImages == 0 {
		return nil, errors.New("no images provided")
	}

	images := make([]image.Image, numImages)
	for i, buf := range imageBufs {
		img, _, err := image.Decode(buf)
		if err != nil {
			return nil, err
		}
		images[i] = img
	}

	layout := c.layout
	if layout == nil {
		layout = determineLayout
	}
	rows, cols := layout(numImages, images)

	widths, heights := cellSizes(images, rows, cols)
	canvas := image.NewRGBA(image.Rect(0, 0, sum(widths), sum(heights)))

	y := 0
	for row := range rows {
		x := 0
		for col := range cols {
			i := row*cols + col
			if i >= numImages {
				break
			}
			bounds := images[i].Bounds()
			draw.Draw(canvas, image.Rect(x, y, x+bounds.Dx(), y+bounds.Dy()), images[i], bounds.Min, draw.Over)
			x += widths[col]
		}
		y += heights[row]
	}

	imageBuf := new(bytes.Buffer)
	if err := png.Encode(imageBuf, canvas); err != nil {
		return nil, err
	}

	return imageBuf, nil
}

func determineLayout(numImages int, images []image.Image) (rows, cols int) {
	// prefer more columns than rows
	cols = int(math.Ceil(math.Sqrt(float64(numImages))))
	rows = int(math.Ceil(float64(numImages) / float64(cols)))

	if mostlyLandscape(images) {
		rows, cols = cols, rows
	}
	return
}

// cellSizes returns the widest image of every column and the tallest of every row.
func cellSizes(images []image.Image, rows, cols int) (widths, heights []int) {
	widths = make([]int, cols)
	heights = make([]int, rows)

	for i, img := range images {
		row, col := i/cols, i%cols
		bounds := img.Bounds()
		widths[col] = max(widths[col], bounds.Dx())
		heights[row] = max(heights[row], bounds.Dy())
	}
	return
}

func mostlyLandscape(images []image.Image) bool {
	var portrait, landscape, square int
	for _, img := range images {
		switch bounds := img.Bounds(); {
		case bounds.Dx() > bounds.Dy():
			landscape++
		case bounds.Dx() < bounds.Dy():
			portrait++
		default:
			square++
		}
	}
	return landscape > portrait && landscape > square
}

func sum(values []int) (total int) {
	for _, v := range values {
		total += v
	}
	return
}
