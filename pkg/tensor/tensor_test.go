package tensor

import (
	"errors"
	"math"
	"testing"
)

func TestNew(t *testing.T) {
	tt, err := New[uint8]("", 2, 3, 4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tt.Len() != 24 {
		t.Errorf("Len() = %d, want 24", tt.Len())
	}
	if tt.Rank() != 3 {
		t.Errorf("Rank() = %d, want 3", tt.Rank())
	}
	if tt.Device() != DeviceCPU {
		t.Errorf("Device() = %q, want %q", tt.Device(), DeviceCPU)
	}
	if tt.DType() != Uint8 {
		t.Errorf("DType() = %v, want uint8", tt.DType())
	}
}

func TestNewNegativeDimension(t *testing.T) {
	_, err := New[float32]("cpu", 2, -1)
	if !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestNewOverflowingShape(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
	}{
		{"two huge dims", []int{math.MaxInt / 2, 3}},
		{"many dims", []int{1 << 20, 1 << 20, 1 << 20, 1 << 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New[uint8]("cpu", tt.shape...); !errors.Is(err, ErrShape) {
				t.Errorf("New%v: expected ErrShape, got %v", tt.shape, err)
			}
			if _, err := FromSlice([]uint8{}, "cpu", tt.shape...); !errors.Is(err, ErrShape) {
				t.Errorf("FromSlice%v: expected ErrShape, got %v", tt.shape, err)
			}
		})
	}
}

func TestFromSliceLengthMismatch(t *testing.T) {
	_, err := FromSlice([]int32{1, 2, 3}, "cpu", 2, 2)
	if !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestDTypes(t *testing.T) {
	tests := []struct {
		got  DType
		want string
		size int
	}{
		{mustNew[uint8](t).DType(), "uint8", 1},
		{mustNew[int32](t).DType(), "int32", 4},
		{mustNew[float32](t).DType(), "float32", 4},
	}
	for _, tc := range tests {
		if tc.got.String() != tc.want {
			t.Errorf("DType = %s, want %s", tc.got, tc.want)
		}
		if tc.got.Size() != tc.size {
			t.Errorf("%s Size() = %d, want %d", tc.want, tc.got.Size(), tc.size)
		}
	}
}

func mustNew[T Element](t *testing.T) *Tensor[T] {
	t.Helper()
	tt, err := New[T]("cpu", 1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tt
}

func TestAtSet(t *testing.T) {
	tt, _ := New[float32]("cpu", 2, 3)
	if err := tt.Set(5, 1, 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if tt.Data()[5] != 5 {
		t.Errorf("row-major offset wrong: data = %v", tt.Data())
	}
	v, err := tt.At(1, 2)
	if err != nil || v != 5 {
		t.Errorf("At(1, 2) = %v, %v; want 5, nil", v, err)
	}

	if _, err := tt.At(2, 0); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex for out of range, got %v", err)
	}
	if _, err := tt.At(0); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex for wrong rank, got %v", err)
	}
}

func TestEnvView(t *testing.T) {
	data := []uint8{1, 2, 3, 4, 5, 6, 7, 8}
	tt, _ := FromSlice(data, "cpu", 2, 2, 2)

	env, err := tt.Env(1)
	if err != nil {
		t.Fatalf("Env failed: %v", err)
	}
	if got := env.Data(); len(got) != 4 || got[0] != 5 || got[3] != 8 {
		t.Errorf("Env(1) data = %v, want [5 6 7 8]", got)
	}

	// Views share storage.
	env.Fill(0)
	if data[4] != 0 {
		t.Error("expected Env view to share storage with parent")
	}

	if _, err := tt.Env(2); !errors.Is(err, ErrIndex) {
		t.Errorf("expected ErrIndex, got %v", err)
	}
}

func TestToDevice(t *testing.T) {
	tt, _ := FromSlice([]float32{1, 2}, "cpu", 2)
	if tt.To("cpu") != tt {
		t.Error("To(same device) should return the receiver")
	}

	moved := tt.To("cuda:0")
	if moved == tt {
		t.Fatal("To(other device) should copy")
	}
	if moved.Device() != "cuda:0" {
		t.Errorf("moved device = %s, want cuda:0", moved.Device())
	}
	moved.Data()[0] = 9
	if tt.Data()[0] != 1 {
		t.Error("copy shares storage with source")
	}
}

func TestMinMax(t *testing.T) {
	tt, _ := FromSlice([]float32{0.5, -1, 3, 2}, "cpu", 4)
	lo, hi := tt.MinMax()
	if lo != -1 || hi != 3 {
		t.Errorf("MinMax() = %v, %v; want -1, 3", lo, hi)
	}

	empty, _ := New[uint8]("cpu", 0)
	lo8, hi8 := empty.MinMax()
	if lo8 != 0 || hi8 != 0 {
		t.Errorf("empty MinMax() = %v, %v; want 0, 0", lo8, hi8)
	}
}

func TestSliceChannels(t *testing.T) {
	// 1x2 RGBA image.
	rgba, _ := FromSlice([]uint8{1, 2, 3, 255, 4, 5, 6, 255}, "cpu", 1, 2, 4)

	rgb, err := SliceChannels(rgba, 3)
	if err != nil {
		t.Fatalf("SliceChannels failed: %v", err)
	}
	want := []uint8{1, 2, 3, 4, 5, 6}
	got := rgb.Data()
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
	if s := rgb.Shape(); s[2] != 3 {
		t.Errorf("shape = %v, want channel dim 3", s)
	}

	same, _ := SliceChannels(rgba, 4)
	if same != rgba {
		t.Error("slicing all channels should return the source")
	}

	if _, err := SliceChannels(rgba, 5); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape for too many channels, got %v", err)
	}
	flat, _ := New[uint8]("cpu", 8)
	if _, err := SliceChannels(flat, 1); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape for rank 1, got %v", err)
	}
}

func TestFormatShape(t *testing.T) {
	tests := []struct {
		shape []int
		want  string
	}{
		{[]int{4, 64, 64, 3}, "(4, 64, 64, 3)"},
		{[]int{7}, "(7,)"},
		{nil, "()"},
	}
	for _, tc := range tests {
		if got := FormatShape(tc.shape); got != tc.want {
			t.Errorf("FormatShape(%v) = %q, want %q", tc.shape, got, tc.want)
		}
	}
}
