package sensor

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/gbuffer-camera/internal/logger"
	"github.com/Faultbox/gbuffer-camera/internal/renderer"
)

// GBufferCamera is a TiledCamera with the GBuffer extension attached.
type GBufferCamera struct {
	base    *TiledCamera
	gbuffer *GBuffer
	log     *zap.Logger
}

// NewGBufferCamera validates cfg, including the G-buffer types, and returns
// an uninitialized camera. Unsupported types fail here, before the renderer
// is touched.
func NewGBufferCamera(cfg CameraConfig, log *zap.Logger) (*GBufferCamera, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	base, err := NewTiledCamera(cfg, log)
	if err != nil {
		return nil, err
	}
	gb, err := NewGBuffer(cfg.GBufferDataTypes, log)
	if err != nil {
		return nil, err
	}
	return &GBufferCamera{base: base, gbuffer: gb, log: log}, nil
}

// Initialize initializes the base camera and attaches the G-buffer
// annotators. When the extension fails the base camera is closed again.
func (c *GBufferCamera) Initialize(rctx *renderer.Context, numEnvs int) error {
	c.log.Info("initializing G-buffer camera", zap.Int("envs", numEnvs))
	if err := c.base.Initialize(rctx, numEnvs); err != nil {
		return err
	}
	if err := c.gbuffer.Attach(rctx, c.base); err != nil {
		return errors.Join(fmt.Errorf("initializing G-buffer: %w", err), c.base.Close())
	}
	c.log.Info("G-buffer camera initialized", zap.Strings("gbuffer_types", c.gbuffer.Types()))
	return nil
}

// Update refreshes the base outputs then the G-buffer outputs.
func (c *GBufferCamera) Update(envIDs ...int) error {
	if err := c.base.Update(envIDs...); err != nil {
		return err
	}
	return c.gbuffer.Update(envIDs...)
}

// Close detaches the G-buffer annotators and closes the base camera.
func (c *GBufferCamera) Close() error {
	return errors.Join(c.gbuffer.Detach(), c.base.Close())
}

// Data returns the shared output object.
func (c *GBufferCamera) Data() *Data {
	return c.base.Data()
}

// State returns the lifecycle state of the base camera.
func (c *GBufferCamera) State() State {
	return c.base.State()
}

// Base returns the wrapped provider.
func (c *GBufferCamera) Base() *TiledCamera {
	return c.base
}

// GBuffer returns the extension.
func (c *GBufferCamera) GBuffer() *GBuffer {
	return c.gbuffer
}
