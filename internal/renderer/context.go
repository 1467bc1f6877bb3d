package renderer

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/gbuffer-camera/internal/logger"
	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
	"github.com/Faultbox/gbuffer-camera/pkg/tiled"
)

// Output is one annotator result: a tiled buffer plus optional metadata.
type Output struct {
	Data tensor.Any
	Info map[string]any
}

// Backend renders annotator output for a render product.
// The returned buffer must be shaped (tiledHeight, tiledWidth, desc.Channels).
type Backend interface {
	Render(p *RenderProduct, desc Descriptor, frame uint64) (Output, error)
}

// Resolution is an image size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// RenderProduct is a camera whose output annotators attach to. A product with
// several views renders them as tiles of one composed image.
type RenderProduct struct {
	Path       string
	CameraPath string
	// Resolution of a single view (tile).
	Resolution Resolution
	NumViews   int
	TilesX     int
	TilesY     int
}

// TiledResolution returns the size of the composed image.
func (p *RenderProduct) TiledResolution() Resolution {
	return Resolution{
		Width:  p.TilesX * p.Resolution.Width,
		Height: p.TilesY * p.Resolution.Height,
	}
}

// Options configures a Context.
type Options struct {
	// Device the backend places its buffers on. Empty means CPU.
	Device   string
	Registry *Registry
	Logger   *zap.Logger
}

// Context is the handle through which sensors reach the renderer.
type Context struct {
	backend  Backend
	registry *Registry
	device   string
	log      *zap.Logger

	mu         sync.Mutex
	frame      uint64
	seq        int
	products   map[string]*RenderProduct
	annotators []*Annotator
	closed     bool
}

// NewContext creates a renderer context over backend.
func NewContext(backend Backend, opts Options) *Context {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Device == "" {
		opts.Device = tensor.DeviceCPU
	}
	return &Context{
		backend:  backend,
		registry: opts.Registry,
		device:   opts.Device,
		log:      logger.OrNop(opts.Logger),
		products: make(map[string]*RenderProduct),
	}
}

// Device returns the device annotator buffers are produced on.
func (c *Context) Device() string {
	return c.device
}

// Registry returns the annotator registry.
func (c *Context) Registry() *Registry {
	return c.registry
}

// Frame returns the current frame number.
func (c *Context) Frame() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Step advances to the next frame and returns its number.
func (c *Context) Step() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame++
	return c.frame
}

// CreateRenderProduct registers a product rendering numViews views of res,
// tiled on the grid given by tiled.GridShape.
func (c *Context) CreateRenderProduct(cameraPath string, res Resolution, numViews int) (*RenderProduct, error) {
	if res.Width < 1 || res.Height < 1 {
		return nil, fmt.Errorf("invalid render product resolution %dx%d", res.Width, res.Height)
	}
	if numViews < 1 {
		return nil, fmt.Errorf("render product needs at least one view, got %d", numViews)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}

	tilesX, tilesY := tiled.GridShape(numViews)
	p := &RenderProduct{
		Path:       fmt.Sprintf("/Render/RenderProduct_%d", c.seq),
		CameraPath: cameraPath,
		Resolution: res,
		NumViews:   numViews,
		TilesX:     tilesX,
		TilesY:     tilesY,
	}
	c.seq++
	c.products[p.Path] = p

	c.log.Debug("render product created",
		zap.String("path", p.Path),
		zap.String("camera", cameraPath),
		zap.Int("views", numViews),
		zap.Int("tiles_x", tilesX),
		zap.Int("tiles_y", tilesY),
	)
	return p, nil
}

// DestroyRenderProduct detaches every annotator from the product and forgets it.
func (c *Context) DestroyRenderProduct(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[path]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, path)
	}
	for _, a := range c.annotators {
		a.detachLocked(path)
	}
	c.pruneLocked()
	delete(c.products, path)
	return nil
}

// pruneLocked forgets annotators that are no longer attached to any product.
// Attaching one again makes the context track it again.
func (c *Context) pruneLocked() {
	c.annotators = slices.DeleteFunc(c.annotators, func(a *Annotator) bool { return len(a.attached) == 0 })
}

// Product returns the render product registered at path.
func (c *Context) Product(path string) (*RenderProduct, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, path)
	}
	return p, nil
}

// NewAnnotator returns an unattached annotator of the named kind. The
// context tracks it from its first Attach until it is attached to nothing.
func (c *Context) NewAnnotator(name string) (*Annotator, error) {
	desc, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	return &Annotator{
		ctx:   c,
		desc:  desc,
		cache: make(map[string]cachedOutput),
	}, nil
}

// Close detaches every annotator and releases every render product.
// Calling Close more than once is a no-op.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	for _, a := range c.annotators {
		a.attached = nil
		clear(a.cache)
	}
	c.annotators = nil
	clear(c.products)
	c.closed = true
	c.log.Debug("renderer context closed", zap.Uint64("frame", c.frame))
	return nil
}

// render asks the backend for output and checks it against its descriptor.
// The caller holds c.mu.
func (c *Context) render(p *RenderProduct, desc Descriptor) (Output, error) {
	out, err := c.backend.Render(p, desc, c.frame)
	if err != nil {
		return Output{}, fmt.Errorf("rendering %s for %s: %w", desc.Name, p.Path, err)
	}
	if out.Data == nil {
		return Output{}, fmt.Errorf("%w: %s returned no data", ErrBackendOutput, desc.Name)
	}
	res := p.TiledResolution()
	want := []int{res.Height, res.Width, desc.Channels}
	if !slices.Equal(out.Data.Shape(), want) || out.Data.DType() != desc.DType {
		return Output{}, fmt.Errorf("%w: %s got %s %s, want %s %s", ErrBackendOutput, desc.Name,
			tensor.FormatShape(out.Data.Shape()), out.Data.DType(), tensor.FormatShape(want), desc.DType)
	}
	return out, nil
}
