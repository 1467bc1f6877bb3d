// Package sim drives sensors through a minimal frame loop.
package sim

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/gbuffer-camera/internal/logger"
	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/internal/sensor"
)

// Runtime errors.
var (
	ErrUnknownSensor   = errors.New("unknown sensor")
	ErrDuplicateSensor = errors.New("sensor already registered")
	ErrNotReset        = errors.New("runtime not reset")
	ErrRuntimeClosed   = errors.New("runtime closed")
)

// Sensor is anything the runtime can initialize, update each frame and close.
type Sensor interface {
	Initialize(rctx *renderer.Context, numEnvs int) error
	Update(envIDs ...int) error
	Close() error
	Data() *sensor.Data
}

type namedSensor struct {
	name   string
	sensor Sensor
}

// Runtime owns the renderer context and every registered sensor.
type Runtime struct {
	NumEnvs int
	Device  string

	rctx    *renderer.Context
	log     *zap.Logger
	sensors []namedSensor
	ready   bool
	closed  bool
}

// NewRuntime returns a runtime over rctx. Close closes rctx.
func NewRuntime(rctx *renderer.Context, numEnvs int, log *zap.Logger) (*Runtime, error) {
	if numEnvs < 1 {
		return nil, fmt.Errorf("runtime needs at least one environment, got %d", numEnvs)
	}
	return &Runtime{
		NumEnvs: numEnvs,
		Device:  rctx.Device(),
		rctx:    rctx,
		log:     logger.OrNop(log),
	}, nil
}

// Context returns the renderer context.
func (r *Runtime) Context() *renderer.Context {
	return r.rctx
}

// AddSensor registers s under name. Sensors are reset in registration order.
func (r *Runtime) AddSensor(name string, s Sensor) error {
	if r.closed {
		return ErrRuntimeClosed
	}
	if r.ready {
		return fmt.Errorf("adding sensor %q after reset", name)
	}
	for _, ns := range r.sensors {
		if ns.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateSensor, name)
		}
	}
	r.sensors = append(r.sensors, namedSensor{name: name, sensor: s})
	return nil
}

// Reset initializes every sensor and fills their buffers with the first frame.
func (r *Runtime) Reset() error {
	if r.closed {
		return ErrRuntimeClosed
	}
	if !r.ready {
		for _, ns := range r.sensors {
			if err := ns.sensor.Initialize(r.rctx, r.NumEnvs); err != nil {
				return fmt.Errorf("initializing sensor %q: %w", ns.name, err)
			}
		}
		r.ready = true
	}
	if err := r.update(); err != nil {
		return err
	}
	r.log.Info("runtime reset", zap.Int("envs", r.NumEnvs), zap.Int("sensors", len(r.sensors)))
	return nil
}

// Step renders the next frame and updates every sensor.
func (r *Runtime) Step() error {
	if r.closed {
		return ErrRuntimeClosed
	}
	if !r.ready {
		return ErrNotReset
	}
	frame := r.rctx.Step()
	r.log.Debug("step", zap.Uint64("frame", frame))
	return r.update()
}

func (r *Runtime) update() error {
	for _, ns := range r.sensors {
		if err := ns.sensor.Update(); err != nil {
			return fmt.Errorf("updating sensor %q: %w", ns.name, err)
		}
	}
	return nil
}

// Sensor returns the sensor registered under name.
func (r *Runtime) Sensor(name string) (Sensor, error) {
	for _, ns := range r.sensors {
		if ns.name == name {
			return ns.sensor, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSensor, name)
}

// Frame returns the current renderer frame.
func (r *Runtime) Frame() uint64 {
	return r.rctx.Frame()
}

// Close closes sensors in reverse registration order, then the renderer
// context. Closing twice is a no-op.
func (r *Runtime) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for i := len(r.sensors) - 1; i >= 0; i-- {
		if err := r.sensors[i].sensor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing sensor %q: %w", r.sensors[i].name, err))
		}
	}
	errs = append(errs, r.rctx.Close())
	r.log.Info("runtime closed", zap.Uint64("frame", r.rctx.Frame()))
	return errors.Join(errs...)
}
