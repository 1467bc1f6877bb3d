// Package sensor implements the tiled camera sensor and its G-buffer extension.
//
// A TiledCamera renders every environment into one tiled render product and
// reshapes each annotator's tiled buffer into per-environment tensors. The
// GBuffer extension wraps any Provider and adds material buffers under
// "gbuffer:<type>" keys.
package sensor

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
	"github.com/Faultbox/gbuffer-camera/pkg/tiled"
)

// Sensor errors.
var (
	ErrInvalidConfig          = errors.New("invalid camera config")
	ErrUnsupportedDataType    = errors.New("unsupported camera data type")
	ErrUnsupportedGBufferType = errors.New("unsupported G-buffer data type")
	ErrNotInitialized         = errors.New("camera not initialized")
	ErrAlreadyInitialized     = errors.New("camera already initialized")
	ErrClosed                 = errors.New("camera closed")
	ErrMissingOutput          = errors.New("camera output missing")
	ErrOutputType             = errors.New("camera output has a different element type")
)

// GBufferPrefix prefixes the output key of every G-buffer data type.
const GBufferPrefix = "gbuffer:"

// GBufferKey returns the output key for a G-buffer data type.
func GBufferKey(dataType string) string {
	return GBufferPrefix + dataType
}

// channelLayout binds a data type to the annotator producing it and the number
// of leading channels kept from the annotator's buffer.
type channelLayout struct {
	Annotator string
	Channels  int
}

var dataTypes = map[string]channelLayout{
	"rgb":                           {renderer.LdrColor, 3},
	"rgba":                          {renderer.LdrColor, 4},
	"normals":                       {renderer.Normals, 3},
	"distance_to_image_plane":       {renderer.DistanceToImagePlane, 1},
	"depth":                         {renderer.DistanceToImagePlane, 1},
	"instance_id_segmentation_fast": {renderer.InstanceIDSegmentationFast, 1},
}

var gbufferTypes = map[string]channelLayout{
	"albedo": {renderer.DiffuseAlbedo, 3},
}

// DataTypes lists the supported base camera data types.
func DataTypes() []string {
	return sortedKeys(dataTypes)
}

// GBufferTypes lists the supported G-buffer data types.
func GBufferTypes() []string {
	return sortedKeys(gbufferTypes)
}

func sortedKeys(m map[string]channelLayout) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// allocate creates a zeroed buffer of the given element type.
func allocate(dtype tensor.DType, device string, shape ...int) (tensor.Any, error) {
	switch dtype {
	case tensor.Uint8:
		return tensor.New[uint8](device, shape...)
	case tensor.Int32:
		return tensor.New[int32](device, shape...)
	case tensor.Float32:
		return tensor.New[float32](device, shape...)
	default:
		return nil, fmt.Errorf("%w: cannot allocate %s", ErrInvalidConfig, dtype)
	}
}

// prepare moves an annotator buffer to device and keeps its first channels.
func prepare(buf tensor.Any, device string, channels int) (tensor.Any, error) {
	switch b := buf.(type) {
	case *tensor.Tensor[uint8]:
		return prepareTyped(b, device, channels)
	case *tensor.Tensor[int32]:
		return prepareTyped(b, device, channels)
	case *tensor.Tensor[float32]:
		return prepareTyped(b, device, channels)
	default:
		return nil, fmt.Errorf("%w: unsupported annotator buffer %T", tiled.ErrShapeMismatch, buf)
	}
}

func prepareTyped[T tensor.Element](t *tensor.Tensor[T], device string, channels int) (tensor.Any, error) {
	t = t.To(device)
	if t.Rank() != 3 {
		return t, nil
	}
	return tensor.SliceChannels(t, channels)
}

// fetchInto pulls the current frame from a, prepares it and reshapes it into
// dst. Info, when present, is returned for the caller to publish.
func fetchInto(a *renderer.Annotator, dst tensor.Any, channels, tilesX int, l tiled.Launch) (map[string]any, error) {
	out, err := a.Data()
	if err != nil {
		return nil, err
	}
	src, err := prepare(out.Data, dst.Device(), channels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Name(), err)
	}
	if err := tiled.ReshapeAny(src, dst, tilesX, l); err != nil {
		return nil, fmt.Errorf("%s: %w", a.Name(), err)
	}
	return out.Info, nil
}
