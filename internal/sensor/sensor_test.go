package sensor

import (
	"errors"
	"slices"
	"testing"

	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/internal/renderer/synthetic"
	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
	"github.com/Faultbox/gbuffer-camera/pkg/tiled"
)

func newContext(t *testing.T) *renderer.Context {
	t.Helper()
	ctx := renderer.NewContext(synthetic.New(synthetic.DefaultConfig(), nil), renderer.Options{})
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func smallConfig() CameraConfig {
	cfg := DefaultCameraConfig()
	cfg.Width = 16
	cfg.Height = 12
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*CameraConfig)
		want   error
	}{
		{"default", func(*CameraConfig) {}, nil},
		{"zero width", func(c *CameraConfig) { c.Width = 0 }, ErrInvalidConfig},
		{"negative workers", func(c *CameraConfig) { c.Workers = -1 }, ErrInvalidConfig},
		{"unknown data type", func(c *CameraConfig) { c.DataTypes = []string{"motion_vectors"} }, ErrUnsupportedDataType},
		{"duplicate data type", func(c *CameraConfig) { c.DataTypes = []string{"rgb", "rgb"} }, ErrInvalidConfig},
		{"unknown gbuffer type", func(c *CameraConfig) { c.GBufferDataTypes = []string{"roughness"} }, ErrUnsupportedGBufferType},
		{"duplicate gbuffer type", func(c *CameraConfig) { c.GBufferDataTypes = []string{"albedo", "albedo"} }, ErrInvalidConfig},
		{"no gbuffer types", func(c *CameraConfig) { c.GBufferDataTypes = nil }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCameraConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.want == nil && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnsupportedGBufferTypeFailsBeforeAttach(t *testing.T) {
	ctx := newContext(t)
	cfg := smallConfig()
	cfg.GBufferDataTypes = []string{"albedo", "specular"}

	cam, err := NewGBufferCamera(cfg, nil)
	if !errors.Is(err, ErrUnsupportedGBufferType) {
		t.Fatalf("NewGBufferCamera() error = %v, want %v", err, ErrUnsupportedGBufferType)
	}
	if cam != nil {
		t.Error("expected no camera on config error")
	}
	if _, err := ctx.Product("/Render/RenderProduct_0"); !errors.Is(err, renderer.ErrUnknownProduct) {
		t.Errorf("render product exists after config error: %v", err)
	}

	if _, err := NewGBuffer([]string{"specular"}, nil); !errors.Is(err, ErrUnsupportedGBufferType) {
		t.Errorf("NewGBuffer() error = %v, want %v", err, ErrUnsupportedGBufferType)
	}
}

func TestGBufferCameraLifecycle(t *testing.T) {
	ctx := newContext(t)
	cam, err := NewGBufferCamera(smallConfig(), nil)
	if err != nil {
		t.Fatalf("NewGBufferCamera failed: %v", err)
	}
	if cam.State() != Uninitialized {
		t.Errorf("State() = %v, want %v", cam.State(), Uninitialized)
	}
	if err := cam.Update(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Update() before Initialize = %v, want %v", err, ErrNotInitialized)
	}

	if err := cam.Initialize(ctx, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := cam.Initialize(ctx, 3); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Initialize = %v, want %v", err, ErrAlreadyInitialized)
	}
	if cam.State() != Initialized {
		t.Errorf("State() = %v, want %v", cam.State(), Initialized)
	}

	wantKeys := []string{"gbuffer:albedo", "instance_id_segmentation_fast", "normals", "rgb"}
	if got := cam.Data().Keys(); !slices.Equal(got, wantKeys) {
		t.Errorf("Keys() = %v, want %v", got, wantKeys)
	}

	if err := cam.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	albedo, err := cam.Data().Uint8("gbuffer:albedo")
	if err != nil {
		t.Fatalf("albedo: %v", err)
	}
	if want := []int{3, 12, 16, 3}; !slices.Equal(albedo.Shape(), want) {
		t.Errorf("albedo shape = %v, want %v", albedo.Shape(), want)
	}
	if _, hi := albedo.MinMax(); hi == 0 {
		t.Error("albedo is all zero after Update")
	}

	normals, err := cam.Data().Float32("normals")
	if err != nil {
		t.Fatalf("normals: %v", err)
	}
	if want := []int{3, 12, 16, 3}; !slices.Equal(normals.Shape(), want) {
		t.Errorf("normals shape = %v, want %v", normals.Shape(), want)
	}
	if _, err := cam.Data().Float32("rgb"); !errors.Is(err, ErrOutputType) {
		t.Errorf("Float32(rgb) error = %v, want %v", err, ErrOutputType)
	}
	if _, err := cam.Data().Uint8("depth"); !errors.Is(err, ErrMissingOutput) {
		t.Errorf("Uint8(depth) error = %v, want %v", err, ErrMissingOutput)
	}

	if err := cam.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if cam.State() != Closed {
		t.Errorf("State() = %v, want %v", cam.State(), Closed)
	}
	if cam.GBuffer().Attached() {
		t.Error("G-buffer still attached after Close")
	}
	if err := cam.Update(); !errors.Is(err, ErrClosed) {
		t.Errorf("Update() after Close = %v, want %v", err, ErrClosed)
	}
	if err := cam.Initialize(ctx, 3); !errors.Is(err, ErrClosed) {
		t.Errorf("Initialize() after Close = %v, want %v", err, ErrClosed)
	}
	if _, err := ctx.Product("/Render/RenderProduct_0"); !errors.Is(err, renderer.ErrUnknownProduct) {
		t.Errorf("render product survives Close: %v", err)
	}
}

func TestInstanceIDInfo(t *testing.T) {
	ctx := newContext(t)
	cam, err := NewGBufferCamera(smallConfig(), nil)
	if err != nil {
		t.Fatalf("NewGBufferCamera failed: %v", err)
	}
	defer cam.Close()
	if err := cam.Initialize(ctx, 2); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := cam.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	info, ok := cam.Data().Info["instance_id_segmentation_fast"]
	if !ok {
		t.Fatal("no info for instance_id_segmentation_fast")
	}
	labels, ok := info[renderer.InfoIDToLabels].(map[string]string)
	if !ok {
		t.Fatalf("idToLabels has type %T", info[renderer.InfoIDToLabels])
	}
	if labels["0"] != "BACKGROUND" {
		t.Errorf("idToLabels[0] = %q, want BACKGROUND", labels["0"])
	}

	ids, err := cam.Data().Int32("instance_id_segmentation_fast")
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if want := []int{2, 12, 16, 1}; !slices.Equal(ids.Shape(), want) {
		t.Errorf("ids shape = %v, want %v", ids.Shape(), want)
	}
	_, hi := ids.MinMax()
	if hi == 0 {
		t.Error("no instance hit in any environment")
	}
}

func TestUpdateMatchesTiledProduct(t *testing.T) {
	ctx := newContext(t)
	cfg := smallConfig()
	cfg.DataTypes = []string{"rgba"}
	cfg.GBufferDataTypes = nil
	cam, err := NewTiledCamera(cfg, nil)
	if err != nil {
		t.Fatalf("NewTiledCamera failed: %v", err)
	}
	defer cam.Close()
	if err := cam.Initialize(ctx, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := cam.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	a, err := ctx.NewAnnotator(renderer.LdrColor)
	if err != nil {
		t.Fatalf("NewAnnotator failed: %v", err)
	}
	if err := a.Attach(cam.RenderProductPaths()...); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	out, err := a.Data()
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	raw := out.Data.(*tensor.Tensor[uint8])

	rgba, err := cam.Data().Uint8("rgba")
	if err != nil {
		t.Fatalf("rgba: %v", err)
	}
	tilesX, _ := cam.TilingGrid()
	back, err := tiled.NewTiled[uint8](tensor.DeviceCPU, 3, 12, 16, 4, tilesX)
	if err != nil {
		t.Fatalf("NewTiled failed: %v", err)
	}
	if err := tiled.Tile(rgba, back, tilesX); err != nil {
		t.Fatalf("Tile failed: %v", err)
	}

	// The fourth tile has no environment and stays zero in back.
	rowLen := tilesX * 16 * 4
	for y := 0; y < 12; y++ {
		got := back.Data()[y*rowLen : (y+1)*rowLen]
		want := raw.Data()[y*rowLen : (y+1)*rowLen]
		if !slices.Equal(got, want) {
			t.Fatalf("tile row %d differs after round trip", y)
		}
	}
	for y := 12; y < 24; y++ {
		got := back.Data()[y*rowLen : y*rowLen+16*4]
		want := raw.Data()[y*rowLen : y*rowLen+16*4]
		if !slices.Equal(got, want) {
			t.Fatalf("tile row %d (env 2) differs after round trip", y)
		}
	}
}

func TestUpdateEnvSubset(t *testing.T) {
	ctx := newContext(t)
	cfg := smallConfig()
	cam, err := NewGBufferCamera(cfg, nil)
	if err != nil {
		t.Fatalf("NewGBufferCamera failed: %v", err)
	}
	defer cam.Close()
	if err := cam.Initialize(ctx, 4); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	albedo, err := cam.Data().Uint8("gbuffer:albedo")
	if err != nil {
		t.Fatalf("albedo: %v", err)
	}
	albedo.Fill(0xAA)

	ctx.Step()
	if err := cam.Update(1, 3); err != nil {
		t.Fatalf("Update(1, 3) failed: %v", err)
	}

	for env := 0; env < 4; env++ {
		view, err := albedo.Env(env)
		if err != nil {
			t.Fatalf("Env(%d): %v", env, err)
		}
		lo, hi := view.MinMax()
		untouched := lo == 0xAA && hi == 0xAA
		if written := env == 1 || env == 3; written == untouched {
			t.Errorf("env %d: untouched = %v, want %v", env, untouched, !written)
		}
	}
	if got := cam.Data().Frame; got != 1 {
		t.Errorf("Frame = %d, want 1", got)
	}

	if err := cam.Update(4); !errors.Is(err, tiled.ErrShapeMismatch) {
		t.Errorf("Update(4) error = %v, want %v", err, tiled.ErrShapeMismatch)
	}
}

func TestOutputsFollowSensorDevice(t *testing.T) {
	ctx := newContext(t)
	cfg := smallConfig()
	cfg.Device = "cuda:0"
	cam, err := NewGBufferCamera(cfg, nil)
	if err != nil {
		t.Fatalf("NewGBufferCamera failed: %v", err)
	}
	defer cam.Close()
	if err := cam.Initialize(ctx, 1); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := cam.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	for key, buf := range cam.Data().Output {
		if buf.Device() != "cuda:0" {
			t.Errorf("%s on %q, want cuda:0", key, buf.Device())
		}
	}
}

func TestGBufferAttachFailures(t *testing.T) {
	ctx := newContext(t)
	cfg := smallConfig()
	base, err := NewTiledCamera(cfg, nil)
	if err != nil {
		t.Fatalf("NewTiledCamera failed: %v", err)
	}

	gb, err := NewGBuffer([]string{"albedo"}, nil)
	if err != nil {
		t.Fatalf("NewGBuffer failed: %v", err)
	}
	if err := gb.Attach(ctx, base); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Attach to uninitialized base = %v, want %v", err, ErrNotInitialized)
	}
	if err := gb.Update(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Update before Attach = %v, want %v", err, ErrNotInitialized)
	}

	if err := base.Initialize(ctx, 2); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	ctx.Close()
	if err := gb.Attach(ctx, base); !errors.Is(err, renderer.ErrContextClosed) {
		t.Errorf("Attach on closed context = %v, want %v", err, renderer.ErrContextClosed)
	}
	if gb.Attached() {
		t.Error("G-buffer attached after failure")
	}
	if base.Data().Has(GBufferKey("albedo")) {
		t.Error("albedo buffer allocated after failed attach")
	}
	if err := gb.Detach(); err != nil {
		t.Errorf("Detach on unattached extension = %v", err)
	}
}

func TestInitializeFailureRollsBack(t *testing.T) {
	// A registry without Normals makes the second data type fail after rgb
	// has been attached and allocated.
	reg := &renderer.Registry{}
	if err := reg.Register(renderer.Descriptor{Name: renderer.LdrColor, DType: tensor.Uint8, Channels: 4}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	partial := renderer.NewContext(synthetic.New(synthetic.DefaultConfig(), nil), renderer.Options{Registry: reg})
	defer partial.Close()

	cfg := smallConfig()
	cfg.DataTypes = []string{"rgb", "normals"}
	cfg.GBufferDataTypes = nil
	cam, err := NewTiledCamera(cfg, nil)
	if err != nil {
		t.Fatalf("NewTiledCamera failed: %v", err)
	}
	data := cam.Data()

	if err := cam.Initialize(partial, 2); !errors.Is(err, renderer.ErrUnknownAnnotator) {
		t.Fatalf("Initialize = %v, want %v", err, renderer.ErrUnknownAnnotator)
	}
	if got := cam.State(); got != Uninitialized {
		t.Errorf("State() = %v after failed Initialize, want %v", got, Uninitialized)
	}
	if keys := data.Keys(); len(keys) != 0 {
		t.Errorf("outputs %v left after failed Initialize", keys)
	}
	if cam.rctx != nil {
		t.Error("renderer context retained after failed Initialize")
	}
	if paths := cam.RenderProductPaths(); len(paths) != 0 {
		t.Errorf("render products %v left after failed Initialize", paths)
	}
	if err := cam.Update(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Update after failed Initialize = %v, want %v", err, ErrNotInitialized)
	}

	ctx := newContext(t)
	if err := cam.Initialize(ctx, 2); err != nil {
		t.Fatalf("retry Initialize failed: %v", err)
	}
	if err := cam.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !slices.Equal(data.Keys(), []string{"normals", "rgb"}) {
		t.Errorf("Keys() = %v, want [normals rgb]", data.Keys())
	}
}

func TestGBufferKey(t *testing.T) {
	if got := GBufferKey("albedo"); got != "gbuffer:albedo" {
		t.Errorf("GBufferKey(albedo) = %q, want gbuffer:albedo", got)
	}
	if got := GBufferTypes(); !slices.Equal(got, []string{"albedo"}) {
		t.Errorf("GBufferTypes() = %v", got)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Uninitialized, "uninitialized"},
		{Initialized, "initialized"},
		{Closed, "closed"},
		{State(7), "state(7)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
