package tensor

import "fmt"

// SliceChannels returns a contiguous copy of the first n channels of a rank-3
// (height, width, channels) buffer, e.g. RGBA to RGB. When n equals the channel
// count the source is returned unchanged.
func SliceChannels[T Element](t *Tensor[T], n int) (*Tensor[T], error) {
	if t.Rank() != 3 {
		return nil, fmt.Errorf("%w: channel slice needs rank 3, got %s", ErrShape, FormatShape(t.shape))
	}
	h, w, c := t.shape[0], t.shape[1], t.shape[2]
	if n < 1 || n > c {
		return nil, fmt.Errorf("%w: cannot take %d of %d channels", ErrShape, n, c)
	}
	if n == c {
		return t, nil
	}

	out := make([]T, h*w*n)
	for p := 0; p < h*w; p++ {
		copy(out[p*n:(p+1)*n], t.data[p*c:p*c+n])
	}
	return &Tensor[T]{
		shape:  []int{h, w, n},
		data:   out,
		device: t.device,
	}, nil
}
