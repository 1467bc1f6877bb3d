// Package app wires config, renderer, camera and runtime into the session
// the visualization tools run.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/gbuffer-camera/internal/config"
	"github.com/Faultbox/gbuffer-camera/internal/logger"
	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/internal/renderer/synthetic"
	"github.com/Faultbox/gbuffer-camera/internal/sensor"
	"github.com/Faultbox/gbuffer-camera/internal/sim"
)

// CameraName is the runtime name of the camera sensor.
const CameraName = "camera"

// Figure composes one visualization from camera data.
type Figure func(*sensor.Data) (*image.RGBA, error)

// Session is a running simulation with one G-buffer camera.
type Session struct {
	Runtime *sim.Runtime
	Camera  *sensor.GBufferCamera

	cfg *config.Config
	log *zap.Logger
}

// Start builds the renderer and camera from cfg, resets the runtime and
// steps cfg.Sim.Steps frames so the buffers hold fresh data.
func Start(cfg *config.Config, log *zap.Logger) (*Session, error) {
	log = logger.OrNop(log)

	cam, err := sensor.NewGBufferCamera(cfg.Sensor(), log.Named("sensor"))
	if err != nil {
		return nil, fmt.Errorf("creating camera: %w", err)
	}

	backend := synthetic.New(synthetic.Config{
		Seed: cfg.Sim.Seed,
		FOV:  cfg.Camera.FOV,
	}, log.Named("synthetic"))
	rctx := renderer.NewContext(backend, renderer.Options{Logger: log.Named("renderer")})

	rt, err := sim.NewRuntime(rctx, cfg.Sim.NumEnvs, log.Named("sim"))
	if err != nil {
		rctx.Close()
		return nil, err
	}
	s := &Session{Runtime: rt, Camera: cam, cfg: cfg, log: log}

	if err := rt.AddSensor(CameraName, cam); err != nil {
		return nil, errors.Join(err, rt.Close())
	}
	if err := rt.Reset(); err != nil {
		return nil, errors.Join(err, rt.Close())
	}
	log.Info("environment reset, taking initial camera capture")
	for i := 0; i < cfg.Sim.Steps; i++ {
		if err := rt.Step(); err != nil {
			return nil, errors.Join(err, rt.Close())
		}
	}
	return s, nil
}

// Data returns the camera output.
func (s *Session) Data() *sensor.Data {
	return s.Camera.Data()
}

// Close closes the camera and the renderer.
func (s *Session) Close() error {
	return s.Runtime.Close()
}

// Stream steps the simulation every cfg.Stream.Interval, composes fig and
// hands each frame to publish, until ctx is done.
func (s *Session) Stream(ctx context.Context, fig Figure, publish func(*image.RGBA) bool) error {
	ticker := time.NewTicker(s.cfg.Stream.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := s.Runtime.Step(); err != nil {
			return err
		}
		img, err := fig(s.Data())
		if err != nil {
			return err
		}
		if !publish(img) {
			return nil
		}
	}
}
