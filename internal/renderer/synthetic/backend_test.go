package synthetic

import (
	"errors"
	"strconv"
	"testing"

	"github.com/chewxy/math32"

	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
	"github.com/Faultbox/gbuffer-camera/pkg/tiled"
)

// newProduct sets up a context with three 16x12 views (a 2x2 grid, one tile empty).
func newProduct(t *testing.T, b *Backend) (*renderer.Context, *renderer.RenderProduct) {
	t.Helper()
	ctx := renderer.NewContext(b, renderer.Options{})
	t.Cleanup(func() { ctx.Close() })
	p, err := ctx.CreateRenderProduct("/World/envs/env_.*/Camera", renderer.Resolution{Width: 16, Height: 12}, 3)
	if err != nil {
		t.Fatalf("CreateRenderProduct failed: %v", err)
	}
	return ctx, p
}

func fetch(t *testing.T, ctx *renderer.Context, p *renderer.RenderProduct, name string) renderer.Output {
	t.Helper()
	a, err := ctx.NewAnnotator(name)
	if err != nil {
		t.Fatalf("NewAnnotator(%s) failed: %v", name, err)
	}
	if err := a.Attach(p.Path); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	out, err := a.Data()
	if err != nil {
		t.Fatalf("Data(%s) failed: %v", name, err)
	}
	return out
}

func TestColorOutput(t *testing.T) {
	ctx, p := newProduct(t, New(DefaultConfig(), nil))
	out := fetch(t, ctx, p, renderer.LdrColor)

	rgba := out.Data.(*tensor.Tensor[uint8])
	if s := rgba.Shape(); s[0] != 24 || s[1] != 32 || s[2] != 4 {
		t.Fatalf("shape = %v, want (24, 32, 4)", s)
	}
	d := rgba.Data()
	for i := 3; i < len(d); i += 4 {
		if d[i] != 255 {
			t.Fatalf("alpha at pixel %d = %d, want 255", i/4, d[i])
		}
	}
}

func TestInstanceSegmentation(t *testing.T) {
	ctx, p := newProduct(t, New(DefaultConfig(), nil))
	out := fetch(t, ctx, p, renderer.InstanceIDSegmentationFast)

	ids := out.Data.(*tensor.Tensor[int32])
	labels, ok := out.Info[renderer.InfoIDToLabels].(map[string]string)
	if !ok {
		t.Fatalf("info missing %s: %v", renderer.InfoIDToLabels, out.Info)
	}
	if labels["0"] != "BACKGROUND" {
		t.Errorf("label 0 = %q, want BACKGROUND", labels["0"])
	}

	for _, id := range ids.Data() {
		if _, ok := labels[strconv.Itoa(int(id))]; !ok {
			t.Fatalf("id %d has no label", id)
		}
	}

	g := tiled.Geometry{NumEnvs: 4, Height: 12, Width: 16, Channels: 1, TilesX: 2}
	// The centre of each populated tile looks at the scene, not the sky.
	for env := 0; env < 3; env++ {
		if id := ids.Data()[g.SourceOffset(env, 8, 8)]; id == 0 {
			t.Errorf("env %d: expected an object below the tile centre", env)
		}
	}
	// The fourth tile has no view.
	for row := 0; row < 12; row++ {
		for col := 0; col < 16; col++ {
			if id := ids.Data()[g.SourceOffset(3, row, col)]; id != 0 {
				t.Fatalf("empty tile has id %d at (%d, %d)", id, row, col)
			}
		}
	}
}

func TestNormalsAndDepth(t *testing.T) {
	ctx, p := newProduct(t, New(DefaultConfig(), nil))
	normals := fetch(t, ctx, p, renderer.Normals).Data.(*tensor.Tensor[float32]).Data()
	depth := fetch(t, ctx, p, renderer.DistanceToImagePlane).Data.(*tensor.Tensor[float32]).Data()
	ids := fetch(t, ctx, p, renderer.InstanceIDSegmentationFast).Data.(*tensor.Tensor[int32]).Data()

	for i, id := range ids {
		nx, ny, nz := normals[i*4], normals[i*4+1], normals[i*4+2]
		l := math32.Sqrt(nx*nx + ny*ny + nz*nz)
		if id == 0 {
			if l != 0 {
				t.Fatalf("background pixel %d has normal length %f", i, l)
			}
			if !math32.IsInf(depth[i], 1) {
				t.Fatalf("background pixel %d has depth %f", i, depth[i])
			}
			continue
		}
		if l < 0.999 || l > 1.001 {
			t.Fatalf("pixel %d normal length %f, want ~1", i, l)
		}
		if depth[i] <= 0 || math32.IsInf(depth[i], 0) {
			t.Fatalf("pixel %d depth %f, want finite positive", i, depth[i])
		}
	}
}

func TestDeterministicAndAnimated(t *testing.T) {
	ctxA, pA := newProduct(t, New(DefaultConfig(), nil))
	ctxB, pB := newProduct(t, New(DefaultConfig(), nil))

	a := fetch(t, ctxA, pA, renderer.LdrColor).Data.(*tensor.Tensor[uint8]).Clone()
	b := fetch(t, ctxB, pB, renderer.LdrColor).Data.(*tensor.Tensor[uint8])
	for i := range a.Data() {
		if a.Data()[i] != b.Data()[i] {
			t.Fatalf("same frame differs at sample %d", i)
		}
	}

	for i := 0; i < 5; i++ {
		ctxA.Step()
	}
	later := fetch(t, ctxA, pA, renderer.LdrColor).Data.(*tensor.Tensor[uint8])
	changed := 0
	for i := range a.Data() {
		if a.Data()[i] != later.Data()[i] {
			changed++
		}
	}
	if changed == 0 {
		t.Error("expected the scene to change between frames")
	}
}

func TestUnsupportedAnnotator(t *testing.T) {
	b := New(DefaultConfig(), nil)
	p := &renderer.RenderProduct{
		Path:       "/Render/RenderProduct_0",
		Resolution: renderer.Resolution{Width: 2, Height: 2},
		NumViews:   1,
		TilesX:     1,
		TilesY:     1,
	}
	_, err := b.Render(p, renderer.Descriptor{Name: "Roughness", DType: tensor.Float32, Channels: 1}, 0)
	if !errors.Is(err, ErrUnsupportedAnnotator) {
		t.Errorf("expected ErrUnsupportedAnnotator, got %v", err)
	}
}

func TestHSV(t *testing.T) {
	tests := []struct {
		h    float32
		want [3]float32
	}{
		{0, [3]float32{1, 0, 0}},
		{1.0 / 3, [3]float32{0, 1, 0}},
		{2.0 / 3, [3]float32{0, 0, 1}},
	}
	for _, tt := range tests {
		got := hsv(tt.h, 1, 1)
		for i := range got {
			if math32.Abs(got[i]-tt.want[i]) > 1e-4 {
				t.Errorf("hsv(%f) = %v, want %v", tt.h, got, tt.want)
				break
			}
		}
	}
}
