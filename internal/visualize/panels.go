// Package visualize turns camera buffers into labelled image grids.
package visualize

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"cogentcore.org/core/colors/colormap"
	"github.com/chewxy/math32"

	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

// Colour maps used for scalar panels.
const (
	IDColorMap    = "Jet"
	DepthColorMap = "DarkLight"
)

// ErrBufferShape is returned for buffers that are not (envs, height, width, channels).
var ErrBufferShape = errors.New("buffer is not an (envs, height, width, channels) image stack")

// Panel is one titled cell of a grid.
type Panel struct {
	Title string
	Image image.Image
}

// envImage returns the height, width and channels of env in t.
func envImage[T tensor.Element](t *tensor.Tensor[T], env, minC, maxC int) (*tensor.Tensor[T], int, int, int, error) {
	if t.Rank() != 4 {
		return nil, 0, 0, 0, fmt.Errorf("%w: shape %s", ErrBufferShape, tensor.FormatShape(t.Shape()))
	}
	h, w, c := t.Dim(1), t.Dim(2), t.Dim(3)
	if c < minC || c > maxC {
		return nil, 0, 0, 0, fmt.Errorf("%w: %d channels, want %d to %d", ErrBufferShape, c, minC, maxC)
	}
	view, err := t.Env(env)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	return view, h, w, c, nil
}

// RGB converts env of an RGB or RGBA uint8 stack. Alpha is ignored.
func RGB(t *tensor.Tensor[uint8], env int) (*image.RGBA, error) {
	view, h, w, c, err := envImage(t, env, 3, 4)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	src := view.Data()
	for i := 0; i < h*w; i++ {
		copy(img.Pix[i*4:i*4+3], src[i*c:i*c+3])
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

// Albedo converts env of an albedo stack. Albedo is laid out like RGB.
func Albedo(t *tensor.Tensor[uint8], env int) (*image.RGBA, error) {
	return RGB(t, env)
}

// Normals maps unit normals from [-1, 1] to colours with (n+1)/2.
func Normals(t *tensor.Tensor[float32], env int) (*image.RGBA, error) {
	view, h, w, c, err := envImage(t, env, 3, 4)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	src := view.Data()
	for i := 0; i < h*w; i++ {
		for k := 0; k < 3; k++ {
			img.Pix[i*4+k] = unit((src[i*c+k] + 1) / 2)
		}
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

// InstanceID colours ids with the jet map, normalised over the ids present in env.
func InstanceID(t *tensor.Tensor[int32], env int) (*image.RGBA, error) {
	view, h, w, _, err := envImage(t, env, 1, 1)
	if err != nil {
		return nil, err
	}
	cmap, err := lookupMap(IDColorMap)
	if err != nil {
		return nil, err
	}
	lo, hi := view.MinMax()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, id := range view.Data() {
		var v float32
		if hi > lo {
			v = float32(id-lo) / float32(hi-lo)
		}
		img.SetRGBA(i%w, i/w, mapColor(cmap, v))
	}
	return img, nil
}

// Depth renders distances on the dark-light map, near light and far dark.
// Non-finite distances (nothing hit) are black.
func Depth(t *tensor.Tensor[float32], env int) (*image.RGBA, error) {
	view, h, w, _, err := envImage(t, env, 1, 1)
	if err != nil {
		return nil, err
	}
	cmap, err := lookupMap(DepthColorMap)
	if err != nil {
		return nil, err
	}
	data := view.Data()
	lo, hi := math32.Inf(1), math32.Inf(-1)
	for _, d := range data {
		if math32.IsInf(d, 0) || math32.IsNaN(d) {
			continue
		}
		lo = math32.Min(lo, d)
		hi = math32.Max(hi, d)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, d := range data {
		c := color.RGBA{A: 0xff}
		switch {
		case math32.IsInf(d, 0) || math32.IsNaN(d):
			// Nothing hit, stays black.
		case hi > lo:
			c = mapColor(cmap, 1-(d-lo)/(hi-lo))
		default:
			c = mapColor(cmap, 1)
		}
		img.SetRGBA(i%w, i/w, c)
	}
	return img, nil
}

func lookupMap(name string) (*colormap.Map, error) {
	cmap, ok := colormap.AvailableMaps[name]
	if !ok || cmap == nil {
		return nil, fmt.Errorf("unknown colour map %q", name)
	}
	return cmap, nil
}

// mapColor returns the opaque colour of v, clamped to [0, 1], on cmap.
func mapColor(cmap *colormap.Map, v float32) color.RGBA {
	c := color.RGBAModel.Convert(cmap.Map(clamp01(v))).(color.RGBA)
	c.A = 0xff
	return c
}

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}

// unit converts [0, 1] to a byte, clamping like an image viewer does.
func unit(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
