package sensor

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/gbuffer-camera/internal/logger"
	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/pkg/tiled"
)

// State is a camera lifecycle state.
type State int

// Camera lifecycle: Uninitialized -> Initialized -> Closed.
const (
	Uninitialized State = iota
	Initialized
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Provider is a tiled image source that extensions attach to.
type Provider interface {
	// RenderProductPaths returns the products annotators should attach to.
	RenderProductPaths() []string
	// Data returns the output object extensions add buffers to.
	Data() *Data
	// TilingGrid returns the tile grid of the render product.
	TilingGrid() (tilesX, tilesY int)
	Device() string
	NumEnvs() int
	// Resolution returns the per-environment image size.
	Resolution() (height, width int)
	// Launch returns the reshape parameters for an update of envIDs.
	Launch(envIDs []int) tiled.Launch
}

// TiledCamera renders all environments into one tiled render product.
type TiledCamera struct {
	cfg CameraConfig
	log *zap.Logger

	state      State
	rctx       *renderer.Context
	product    *renderer.RenderProduct
	numEnvs    int
	annotators map[string]*renderer.Annotator
	data       *Data
}

// NewTiledCamera validates cfg and returns an uninitialized camera.
// G-buffer types in cfg are ignored; see NewGBufferCamera.
func NewTiledCamera(cfg CameraConfig, log *zap.Logger) (*TiledCamera, error) {
	if err := cfg.validateBase(); err != nil {
		return nil, err
	}
	return &TiledCamera{
		cfg:  cfg,
		log:  logger.OrNop(log),
		data: newData(),
	}, nil
}

// Initialize creates the render product, attaches one annotator per distinct
// annotator kind and allocates every output buffer.
func (c *TiledCamera) Initialize(rctx *renderer.Context, numEnvs int) error {
	switch c.state {
	case Initialized:
		return ErrAlreadyInitialized
	case Closed:
		return ErrClosed
	}
	if numEnvs < 1 {
		return fmt.Errorf("%w: %d environments", ErrInvalidConfig, numEnvs)
	}

	product, err := rctx.CreateRenderProduct(c.cfg.Prim, renderer.Resolution{Width: c.cfg.Width, Height: c.cfg.Height}, numEnvs)
	if err != nil {
		return fmt.Errorf("creating render product: %w", err)
	}
	c.rctx = rctx
	c.product = product
	c.numEnvs = numEnvs
	c.annotators = make(map[string]*renderer.Annotator)

	for _, dt := range c.cfg.DataTypes {
		desc := dataTypes[dt]
		a, ok := c.annotators[desc.Annotator]
		if !ok {
			a, err = rctx.NewAnnotator(desc.Annotator)
			if err == nil {
				err = a.Attach(product.Path)
			}
			if err != nil {
				c.abortInitialize()
				return fmt.Errorf("attaching %s for %q: %w", desc.Annotator, dt, err)
			}
			c.annotators[desc.Annotator] = a
		}

		buf, err := allocate(a.Descriptor().DType, c.cfg.Device, numEnvs, c.cfg.Height, c.cfg.Width, desc.Channels)
		if err != nil {
			c.abortInitialize()
			return err
		}
		c.data.Output[dt] = buf
	}

	c.state = Initialized
	c.log.Info("tiled camera initialized",
		zap.String("product", product.Path),
		zap.Int("envs", numEnvs),
		zap.Int("width", c.cfg.Width),
		zap.Int("height", c.cfg.Height),
		zap.Strings("data_types", c.cfg.DataTypes),
		zap.Int("tiles_x", product.TilesX),
		zap.Int("tiles_y", product.TilesY),
	)
	return nil
}

// Update fetches the current frame of every data type and reshapes it into
// the output buffers. With envIDs, only those environments are written.
func (c *TiledCamera) Update(envIDs ...int) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	l := c.Launch(envIDs)
	for _, dt := range c.cfg.DataTypes {
		desc := dataTypes[dt]
		// The output buffer's own shape is authoritative for the reshape.
		info, err := fetchInto(c.annotators[desc.Annotator], c.data.Output[dt], desc.Channels, c.product.TilesX, l)
		if err != nil {
			return fmt.Errorf("updating %q: %w", dt, err)
		}
		if info != nil {
			c.data.Info[dt] = info
		}
	}
	c.data.Frame = c.rctx.Frame()
	return nil
}

// Close detaches every annotator and destroys the render product.
// Closing twice is a no-op.
func (c *TiledCamera) Close() error {
	if c.state == Closed {
		return nil
	}
	err := c.release()
	c.state = Closed
	c.log.Debug("tiled camera closed")
	return err
}

func (c *TiledCamera) release() error {
	if c.product == nil {
		return nil
	}
	var errs []error
	for _, a := range c.annotators {
		errs = append(errs, a.Detach(c.product.Path))
	}
	if err := c.rctx.DestroyRenderProduct(c.product.Path); err != nil && !errors.Is(err, renderer.ErrUnknownProduct) {
		errs = append(errs, err)
	}
	c.annotators = nil
	c.product = nil
	return errors.Join(errs...)
}

// abortInitialize undoes a partial Initialize so a retry starts clean.
func (c *TiledCamera) abortInitialize() {
	if err := c.release(); err != nil {
		c.log.Warn("releasing partially initialized camera", zap.Error(err))
	}
	clear(c.data.Output)
	clear(c.data.Info)
	c.data.Frame = 0
	c.rctx = nil
	c.numEnvs = 0
}

func (c *TiledCamera) checkLive() error {
	switch c.state {
	case Uninitialized:
		return ErrNotInitialized
	case Closed:
		return ErrClosed
	}
	return nil
}

// State returns the lifecycle state.
func (c *TiledCamera) State() State {
	return c.state
}

// Config returns the camera configuration.
func (c *TiledCamera) Config() CameraConfig {
	return c.cfg
}

// RenderProductPaths implements Provider.
func (c *TiledCamera) RenderProductPaths() []string {
	if c.product == nil {
		return nil
	}
	return []string{c.product.Path}
}

// Data implements Provider.
func (c *TiledCamera) Data() *Data {
	return c.data
}

// TilingGrid implements Provider.
func (c *TiledCamera) TilingGrid() (tilesX, tilesY int) {
	if c.product == nil {
		return 0, 0
	}
	return c.product.TilesX, c.product.TilesY
}

// Device implements Provider.
func (c *TiledCamera) Device() string {
	return c.cfg.Device
}

// NumEnvs implements Provider.
func (c *TiledCamera) NumEnvs() int {
	return c.numEnvs
}

// Resolution implements Provider.
func (c *TiledCamera) Resolution() (height, width int) {
	return c.cfg.Height, c.cfg.Width
}

// Launch implements Provider.
func (c *TiledCamera) Launch(envIDs []int) tiled.Launch {
	if len(envIDs) == 0 {
		envIDs = nil
	}
	return tiled.Launch{Workers: c.cfg.Workers, EnvIDs: envIDs}
}
