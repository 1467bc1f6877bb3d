package tiled

import (
	"fmt"

	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

// NewTiled allocates a composed buffer of shape (tilesY*height, tilesX*width, channels)
// large enough for numEnvs tiles.
func NewTiled[T tensor.Element](device string, numEnvs, height, width, channels, tilesX int) (*tensor.Tensor[T], error) {
	if tilesX < 1 {
		return nil, fmt.Errorf("%w: num_tiles_x must be >= 1, got %d", ErrInvalidLayout, tilesX)
	}
	tilesY := (numEnvs + tilesX - 1) / tilesX
	return tensor.New[T](device, tilesY*height, tilesX*width, channels)
}

// Tile is the inverse of Reshape: it writes every environment image of src,
// shaped (envs, height, width, channels), into its tile of dst.
// Tiles without an environment are left untouched.
func Tile[T tensor.Element](src, dst *tensor.Tensor[T], tilesX int) error {
	g, err := geometryOf(src.Shape(), tilesX)
	if err != nil {
		return err
	}
	if src.Device() != dst.Device() {
		return fmt.Errorf("%w: %s vs %s", ErrDeviceMismatch, src.Device(), dst.Device())
	}
	if err := checkSource(dst.Shape(), dst.Len(), g); err != nil {
		return err
	}

	in, out := src.Data(), dst.Data()
	span := g.Width * g.Channels
	return launch(g.NumEnvs*g.Height, 0, func(i int) {
		env, row := i/g.Height, i%g.Height
		d := g.SourceOffset(env, row, 0)
		s := (env*g.Height + row) * span
		copy(out[d:d+span], in[s:s+span])
	})
}
