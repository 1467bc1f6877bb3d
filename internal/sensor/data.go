package sensor

import (
	"fmt"
	"sort"

	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

// Data is the camera's output object. Output buffers are allocated once at
// initialisation and overwritten in place every update.
type Data struct {
	// Output maps data type keys ("rgb", "gbuffer:albedo", ...) to
	// (envs, height, width, channels) buffers.
	Output map[string]tensor.Any
	// Info holds per data type metadata, e.g. segmentation label tables.
	Info map[string]map[string]any
	// Frame is the renderer frame the buffers were last updated from.
	Frame uint64
}

func newData() *Data {
	return &Data{
		Output: make(map[string]tensor.Any),
		Info:   make(map[string]map[string]any),
	}
}

// Keys returns the output keys in sorted order.
func (d *Data) Keys() []string {
	keys := make([]string, 0, len(d.Output))
	for k := range d.Output {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether every key is present in Output.
func (d *Data) Has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := d.Output[k]; !ok {
			return false
		}
	}
	return true
}

// Get returns the buffer under key with element type T.
func Get[T tensor.Element](d *Data, key string) (*tensor.Tensor[T], error) {
	buf, ok := d.Output[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingOutput, key)
	}
	t, ok := buf.(*tensor.Tensor[T])
	if !ok {
		return nil, fmt.Errorf("%w: %q holds %s", ErrOutputType, key, buf.DType())
	}
	return t, nil
}

// Uint8 returns the uint8 buffer under key.
func (d *Data) Uint8(key string) (*tensor.Tensor[uint8], error) { return Get[uint8](d, key) }

// Int32 returns the int32 buffer under key.
func (d *Data) Int32(key string) (*tensor.Tensor[int32], error) { return Get[int32](d, key) }

// Float32 returns the float32 buffer under key.
func (d *Data) Float32(key string) (*tensor.Tensor[float32], error) { return Get[float32](d, key) }
