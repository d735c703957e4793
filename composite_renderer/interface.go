package composite_renderer

import (
	"image"
	"io"
)

type Renderer interface {
	// TileImages decodes the images and returns them tiled into a single PNG.
	TileImages(imageBufs []io.Reader) (io.Reader, error)
}

func Compositor() Renderer {
	return &compositor{}
}

// Comparison returns a renderer that puts every image in one row, the init image first.
func Comparison() Renderer {
	return &compositor{layout: func(n int, _ []image.Image) (int, int) { return 1, n }}
}
