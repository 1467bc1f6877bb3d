// Package tensor provides dense, shaped, device-tagged sample buffers.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Tensor errors.
var (
	ErrShape = errors.New("invalid tensor shape")
	ErrIndex = errors.New("tensor index out of range")
)

// DeviceCPU is the default device tag.
const DeviceCPU = "cpu"

// DType identifies the element type of a tensor.
type DType int

// Supported element types.
const (
	Uint8 DType = iota
	Int32
	Float32
)

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8:
		return 1
	case Int32, Float32:
		return 4
	default:
		return 0
	}
}

// Element is the set of sample types a tensor can hold.
type Element interface {
	uint8 | int32 | float32
}

// Any is implemented by every Tensor regardless of element type.
type Any interface {
	Shape() []int
	DType() DType
	Device() string
	Len() int
}

// Tensor is a row-major dense buffer.
// There is no striding: element (i0, i1, ..., in) lives at the usual C-order offset.
type Tensor[T Element] struct {
	shape  []int
	data   []T
	device string
}

// New allocates a zeroed tensor on device with the given shape.
func New[T Element](device string, shape ...int) (*Tensor[T], error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	return &Tensor[T]{
		shape:  append([]int(nil), shape...),
		data:   make([]T, n),
		device: normalizeDevice(device),
	}, nil
}

// FromSlice wraps data without copying. len(data) must equal the product of shape.
func FromSlice[T Element](data []T, device string, shape ...int) (*Tensor[T], error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: %d elements for shape %s", ErrShape, len(data), FormatShape(shape))
	}
	return &Tensor[T]{
		shape:  append([]int(nil), shape...),
		data:   data,
		device: normalizeDevice(device),
	}, nil
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %s", ErrShape, FormatShape(shape))
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: %s overflows the element count", ErrShape, FormatShape(shape))
		}
		n *= d
	}
	return n, nil
}

func normalizeDevice(device string) string {
	if device == "" {
		return DeviceCPU
	}
	return device
}

// Shape returns a copy of the tensor dimensions.
func (t *Tensor[T]) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Data returns the backing storage.
func (t *Tensor[T]) Data() []T {
	return t.data
}

// Device returns the device tag the storage is placed on.
func (t *Tensor[T]) Device() string {
	return t.device
}

// Len returns the total number of elements.
func (t *Tensor[T]) Len() int {
	return len(t.data)
}

// Rank returns the number of dimensions.
func (t *Tensor[T]) Rank() int {
	return len(t.shape)
}

// Dim returns the size of dimension i.
func (t *Tensor[T]) Dim(i int) int {
	return t.shape[i]
}

// DType returns the element type.
func (t *Tensor[T]) DType() DType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case int32:
		return Int32
	default:
		return Float32
	}
}

func (t *Tensor[T]) offset(idx []int) (int, error) {
	if len(idx) != len(t.shape) {
		return 0, fmt.Errorf("%w: %d indices for rank %d", ErrIndex, len(idx), len(t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			return 0, fmt.Errorf("%w: index %d is %d, dimension is %d", ErrIndex, i, v, t.shape[i])
		}
		off = off*t.shape[i] + v
	}
	return off, nil
}

// At returns the element at idx.
func (t *Tensor[T]) At(idx ...int) (T, error) {
	off, err := t.offset(idx)
	if err != nil {
		var zero T
		return zero, err
	}
	return t.data[off], nil
}

// Set stores v at idx.
func (t *Tensor[T]) Set(v T, idx ...int) error {
	off, err := t.offset(idx)
	if err != nil {
		return err
	}
	t.data[off] = v
	return nil
}

// Fill sets every element to v.
func (t *Tensor[T]) Fill(v T) {
	for i := range t.data {
		t.data[i] = v
	}
}

// Clone returns a deep copy on the same device.
func (t *Tensor[T]) Clone() *Tensor[T] {
	return &Tensor[T]{
		shape:  t.Shape(),
		data:   append([]T(nil), t.data...),
		device: t.device,
	}
}

// To returns the tensor placed on device. The receiver is returned when it
// already lives there; otherwise the samples are copied synchronously.
func (t *Tensor[T]) To(device string) *Tensor[T] {
	device = normalizeDevice(device)
	if device == t.device {
		return t
	}
	c := t.Clone()
	c.device = device
	return c
}

// Env returns the i-th slice along the leading dimension as a view sharing storage.
func (t *Tensor[T]) Env(i int) (*Tensor[T], error) {
	if len(t.shape) == 0 || i < 0 || i >= t.shape[0] {
		return nil, fmt.Errorf("%w: env %d", ErrIndex, i)
	}
	inner := t.shape[1:]
	n, _ := numElements(inner)
	return &Tensor[T]{
		shape:  append([]int(nil), inner...),
		data:   t.data[i*n : (i+1)*n : (i+1)*n],
		device: t.device,
	}, nil
}

// Reshape returns a view with a new shape over the same storage.
func (t *Tensor[T]) Reshape(shape ...int) (*Tensor[T], error) {
	return FromSlice(t.data, t.device, shape...)
}

// MinMax returns the smallest and largest elements. Empty tensors yield zeros.
func (t *Tensor[T]) MinMax() (lo, hi T) {
	if len(t.data) == 0 {
		return lo, hi
	}
	lo, hi = t.data[0], t.data[0]
	for _, v := range t.data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// String describes the tensor without printing its samples.
func (t *Tensor[T]) String() string {
	return fmt.Sprintf("Tensor(shape=%s, dtype=%s, device=%s)", FormatShape(t.shape), t.DType(), t.device)
}

// FormatShape renders a shape in tuple form, e.g. "(4, 64, 64, 3)".
func FormatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
