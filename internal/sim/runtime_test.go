package sim

import (
	"errors"
	"testing"

	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/internal/renderer/synthetic"
	"github.com/Faultbox/gbuffer-camera/internal/sensor"
)

// recorder logs lifecycle calls into a shared journal.
type recorder struct {
	name    string
	journal *[]string
	updates int
	failOn  string
	data    *sensor.Data
}

func (r *recorder) note(call string) error {
	*r.journal = append(*r.journal, r.name+"."+call)
	if call == r.failOn {
		return errors.New(call + " failed")
	}
	return nil
}

func (r *recorder) Initialize(*renderer.Context, int) error { return r.note("init") }

func (r *recorder) Update(...int) error {
	r.updates++
	return r.note("update")
}

func (r *recorder) Close() error       { return r.note("close") }
func (r *recorder) Data() *sensor.Data { return r.data }

func newRuntime(t *testing.T, numEnvs int) *Runtime {
	t.Helper()
	rctx := renderer.NewContext(synthetic.New(synthetic.DefaultConfig(), nil), renderer.Options{})
	rt, err := NewRuntime(rctx, numEnvs, nil)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestRuntimeOrder(t *testing.T) {
	rt := newRuntime(t, 2)
	var journal []string
	a := &recorder{name: "a", journal: &journal}
	b := &recorder{name: "b", journal: &journal}
	if err := rt.AddSensor("a", a); err != nil {
		t.Fatalf("AddSensor(a) failed: %v", err)
	}
	if err := rt.AddSensor("b", b); err != nil {
		t.Fatalf("AddSensor(b) failed: %v", err)
	}
	if err := rt.AddSensor("a", a); !errors.Is(err, ErrDuplicateSensor) {
		t.Errorf("duplicate AddSensor = %v, want %v", err, ErrDuplicateSensor)
	}

	if err := rt.Step(); !errors.Is(err, ErrNotReset) {
		t.Errorf("Step before Reset = %v, want %v", err, ErrNotReset)
	}
	if err := rt.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := rt.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if rt.Frame() != 1 {
		t.Errorf("Frame() = %d, want 1", rt.Frame())
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}

	want := []string{"a.init", "b.init", "a.update", "b.update", "a.update", "b.update", "b.close", "a.close"}
	if len(journal) != len(want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
	for i := range want {
		if journal[i] != want[i] {
			t.Errorf("journal[%d] = %q, want %q", i, journal[i], want[i])
		}
	}

	if err := rt.Step(); !errors.Is(err, ErrRuntimeClosed) {
		t.Errorf("Step after Close = %v, want %v", err, ErrRuntimeClosed)
	}
}

func TestRuntimeErrors(t *testing.T) {
	rctx := renderer.NewContext(synthetic.New(synthetic.DefaultConfig(), nil), renderer.Options{})
	if _, err := NewRuntime(rctx, 0, nil); err == nil {
		t.Error("expected error for zero environments")
	}

	rt := newRuntime(t, 1)
	var journal []string
	if err := rt.AddSensor("bad", &recorder{name: "bad", journal: &journal, failOn: "init"}); err != nil {
		t.Fatalf("AddSensor failed: %v", err)
	}
	if err := rt.Reset(); err == nil {
		t.Error("expected Reset to fail")
	}
	if _, err := rt.Sensor("missing"); !errors.Is(err, ErrUnknownSensor) {
		t.Errorf("Sensor(missing) = %v, want %v", err, ErrUnknownSensor)
	}
}

func TestRuntimeWithCamera(t *testing.T) {
	rt := newRuntime(t, 4)
	cfg := sensor.DefaultCameraConfig()
	cfg.Width, cfg.Height = 16, 16
	cam, err := sensor.NewGBufferCamera(cfg, nil)
	if err != nil {
		t.Fatalf("NewGBufferCamera failed: %v", err)
	}
	if err := rt.AddSensor("camera", cam); err != nil {
		t.Fatalf("AddSensor failed: %v", err)
	}
	if err := rt.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := rt.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	s, err := rt.Sensor("camera")
	if err != nil {
		t.Fatalf("Sensor(camera) failed: %v", err)
	}
	data := s.Data()
	if !data.Has("rgb", "normals", "gbuffer:albedo", "instance_id_segmentation_fast") {
		t.Errorf("missing outputs, have %v", data.Keys())
	}
	if data.Frame != 1 {
		t.Errorf("Frame = %d, want 1", data.Frame)
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if cam.State() != sensor.Closed {
		t.Errorf("camera state = %v, want %v", cam.State(), sensor.Closed)
	}
}
