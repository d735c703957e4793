package discord_bot

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/bwmarrin/discordgo"

	"img2img_alt/composite_renderer"
)

// imageFiles turns base64 images into attachments. More than one image is preceded by a grid of
// all of them.
func imageFiles(images []string) ([]*discordgo.File, error) {
	files := make([]*discordgo.File, 0, len(images)+1)
	readers := make([]io.Reader, 0, len(images))
	for n, image := range images {
		data, err := base64.StdEncoding.DecodeString(image)
		if err != nil {
			return nil, fmt.Errorf("error decoding image %d: %w", n, err)
		}
		readers = append(readers, bytes.NewReader(data))
		files = append(files, &discordgo.File{
			Name:        fmt.Sprintf("img2img_alt_%d.png", n),
			ContentType: "image/png",
			Reader:      bytes.NewReader(data),
		})
	}
	if len(images) < 2 {
		return files, nil
	}

	grid, err := composite_renderer.Compositor().TileImages(readers)
	if err != nil {
		return nil, fmt.Errorf("error rendering grid: %w", err)
	}
	return append([]*discordgo.File{{
		Name:        "img2img_alt_grid.png",
		ContentType: "image/png",
		Reader:      grid,
	}}, files...), nil
}
