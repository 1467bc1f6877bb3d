// Package tiled converts between a composed multi-environment tile image and
// per-environment batched tensors.
//
// A tiled buffer holds num_tiles_x * num_tiles_y tiles laid out row-major in a
// single image of (tilesY*height) x (tilesX*width) pixels. Environment i sits in
// tile (i % tilesX, i / tilesX).
package tiled

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

// Layout errors.
var (
	ErrInvalidLayout  = errors.New("invalid tiled layout")
	ErrShapeMismatch  = errors.New("output shape mismatch")
	ErrDeviceMismatch = errors.New("source and destination on different devices")
)

// rowsPerChunk bounds the scheduling granularity of one worker task.
const rowsPerChunk = 64

// Launch controls how a reshape is executed.
type Launch struct {
	// Workers caps concurrent tasks. Zero means runtime.GOMAXPROCS(0).
	Workers int
	// EnvIDs restricts the update to these environments. Nil means all.
	EnvIDs []int
}

// GridShape returns the tile grid used to compose numEnvs images:
// tilesX = ceil(sqrt(n)), tilesY = ceil(n / tilesX).
func GridShape(numEnvs int) (tilesX, tilesY int) {
	if numEnvs <= 0 {
		return 0, 0
	}
	tilesX = int(math.Ceil(math.Sqrt(float64(numEnvs))))
	tilesY = (numEnvs + tilesX - 1) / tilesX
	return tilesX, tilesY
}

// Geometry describes one environment image and the grid it is tiled into.
type Geometry struct {
	NumEnvs  int
	Height   int
	Width    int
	Channels int
	TilesX   int
}

// RowStride returns the number of samples in one row of the composed image.
func (g Geometry) RowStride() int {
	return g.TilesX * g.Width * g.Channels
}

// SourceOffset returns the flat index of channel 0 of pixel (row, col) of env.
func (g Geometry) SourceOffset(env, row, col int) int {
	tileX := env % g.TilesX
	tileY := env / g.TilesX
	srcRow := tileY*g.Height + row
	srcCol := tileX*g.Width + col
	return (srcRow*(g.TilesX*g.Width) + srcCol) * g.Channels
}

// RequiredLen returns one past the highest source index any environment reads.
func (g Geometry) RequiredLen() int {
	if g.NumEnvs == 0 {
		return 0
	}
	// The last environment occupies the last-touched sample of the buffer.
	return g.SourceOffset(g.NumEnvs-1, g.Height-1, g.Width-1) + g.Channels
}

// geometryOf derives the geometry from the destination's own shape.
func geometryOf(dstShape []int, tilesX int) (Geometry, error) {
	if len(dstShape) != 4 {
		return Geometry{}, fmt.Errorf("%w: output must be (envs, height, width, channels), got %s",
			ErrShapeMismatch, tensor.FormatShape(dstShape))
	}
	g := Geometry{
		NumEnvs:  dstShape[0],
		Height:   dstShape[1],
		Width:    dstShape[2],
		Channels: dstShape[3],
		TilesX:   tilesX,
	}
	if g.Height < 1 || g.Width < 1 || g.Channels < 1 {
		return Geometry{}, fmt.Errorf("%w: empty image dimensions in %s", ErrShapeMismatch, tensor.FormatShape(dstShape))
	}
	if tilesX < 1 {
		return Geometry{}, fmt.Errorf("%w: num_tiles_x must be >= 1, got %d", ErrInvalidLayout, tilesX)
	}
	return g, nil
}

// checkSource validates the source against the geometry. Rank-1 sources are
// only bounds checked; rank-3 sources must also agree on channels and width.
func checkSource(srcShape []int, srcLen int, g Geometry) error {
	switch len(srcShape) {
	case 1:
	case 3:
		if srcShape[2] != g.Channels {
			return fmt.Errorf("%w: source has %d channels, output has %d", ErrShapeMismatch, srcShape[2], g.Channels)
		}
		if srcShape[1] != g.TilesX*g.Width {
			return fmt.Errorf("%w: source width %d != %d tiles x %d", ErrInvalidLayout, srcShape[1], g.TilesX, g.Width)
		}
	default:
		return fmt.Errorf("%w: source must be flat or (height, width, channels), got %s",
			ErrInvalidLayout, tensor.FormatShape(srcShape))
	}
	if need := g.RequiredLen(); srcLen < need {
		return fmt.Errorf("%w: source has %d samples, %d environments of %dx%dx%d over %d tiles need %d",
			ErrInvalidLayout, srcLen, g.NumEnvs, g.Height, g.Width, g.Channels, g.TilesX, need)
	}
	return nil
}

func checkEnvIDs(ids []int, numEnvs int) ([]int, error) {
	if ids == nil {
		all := make([]int, numEnvs)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if id < 0 || id >= numEnvs {
			return nil, fmt.Errorf("%w: env id %d outside [0, %d)", ErrShapeMismatch, id, numEnvs)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: env id %d listed twice", ErrShapeMismatch, id)
		}
		seen[id] = true
	}
	return ids, nil
}

// Reshape gathers every environment's tile from src into dst, shaped
// (envs, height, width, channels). height, width and channels come from dst.
func Reshape[T tensor.Element](src, dst *tensor.Tensor[T], tilesX int) error {
	return ReshapeWith(src, dst, tilesX, Launch{})
}

// ReshapeWith is Reshape with explicit launch parameters.
// All validation completes before any sample is written.
func ReshapeWith[T tensor.Element](src, dst *tensor.Tensor[T], tilesX int, l Launch) error {
	g, err := geometryOf(dst.Shape(), tilesX)
	if err != nil {
		return err
	}
	if src.Device() != dst.Device() {
		return fmt.Errorf("%w: %s vs %s", ErrDeviceMismatch, src.Device(), dst.Device())
	}
	if err := checkSource(src.Shape(), src.Len(), g); err != nil {
		return err
	}
	envs, err := checkEnvIDs(l.EnvIDs, g.NumEnvs)
	if err != nil {
		return err
	}

	in, out := src.Data(), dst.Data()
	span := g.Width * g.Channels
	return launch(len(envs)*g.Height, l.Workers, func(i int) {
		env, row := envs[i/g.Height], i%g.Height
		s := g.SourceOffset(env, row, 0)
		d := (env*g.Height + row) * span
		copy(out[d:d+span], in[s:s+span])
	})
}

// ReshapeAny dispatches Reshape on the concrete element type. Differing types
// are a shape mismatch; no conversion is performed.
func ReshapeAny(src, dst tensor.Any, tilesX int, l Launch) error {
	if src.DType() != dst.DType() {
		return fmt.Errorf("%w: source %s, output %s", ErrShapeMismatch, src.DType(), dst.DType())
	}
	switch d := dst.(type) {
	case *tensor.Tensor[uint8]:
		return reshapeTyped(src, d, tilesX, l)
	case *tensor.Tensor[int32]:
		return reshapeTyped(src, d, tilesX, l)
	case *tensor.Tensor[float32]:
		return reshapeTyped(src, d, tilesX, l)
	default:
		return fmt.Errorf("%w: unsupported buffer %T", ErrShapeMismatch, dst)
	}
}

func reshapeTyped[T tensor.Element](src tensor.Any, dst *tensor.Tensor[T], tilesX int, l Launch) error {
	s, ok := src.(*tensor.Tensor[T])
	if !ok {
		return fmt.Errorf("%w: unsupported source %T", ErrShapeMismatch, src)
	}
	return ReshapeWith(s, dst, tilesX, l)
}

// launch runs fn over [0, n) in chunks. Items are independent.
func launch(n, workers int, fn func(i int)) error {
	if n == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || n <= rowsPerChunk {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return nil
	}

	var eg errgroup.Group
	eg.SetLimit(workers)
	for start := 0; start < n; start += rowsPerChunk {
		end := min(start+rowsPerChunk, n)
		eg.Go(func() error {
			for i := start; i < end; i++ {
				fn(i)
			}
			return nil
		})
	}
	return eg.Wait()
}
