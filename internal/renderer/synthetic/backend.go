// Package synthetic is a procedural renderer backend. Each view of a render
// product is an environment with a ground plane, a bouncing sphere and a box,
// ray-cast on the CPU and composed into a tile grid.
package synthetic

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/chewxy/math32"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/gbuffer-camera/internal/logger"
	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
	"github.com/Faultbox/gbuffer-camera/pkg/tiled"
)

// ErrUnsupportedAnnotator is returned for annotators the backend cannot render.
var ErrUnsupportedAnnotator = errors.New("synthetic backend cannot render annotator")

// Config holds backend settings.
type Config struct {
	// Device tag placed on produced buffers. Empty means CPU.
	Device string
	// Seed shifts the per-environment sphere colours.
	Seed int64
	// FOV is the vertical field of view in degrees.
	FOV float32
}

// DefaultConfig returns the settings used by the command line tools.
func DefaultConfig() Config {
	return Config{
		Device: tensor.DeviceCPU,
		FOV:    60,
	}
}

// sample is the full geometry buffer of one pixel.
type sample struct {
	id     int32
	normal vec3
	albedo [3]float32
	color  [3]float32
	depth  float32
}

// frameSamples caches one product's samples for a frame, so every annotator
// of that frame reads the same ray cast.
type frameSamples struct {
	frame  uint64
	pixels []sample
	labels map[string]string
	size   renderer.Resolution
}

// Backend implements renderer.Backend.
type Backend struct {
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	cache map[string]*frameSamples
}

// New creates a backend.
func New(cfg Config, log *zap.Logger) *Backend {
	if cfg.FOV <= 0 {
		cfg.FOV = DefaultConfig().FOV
	}
	if cfg.Device == "" {
		cfg.Device = tensor.DeviceCPU
	}
	return &Backend{
		cfg:   cfg,
		log:   logger.OrNop(log),
		cache: make(map[string]*frameSamples),
	}
}

// Render implements renderer.Backend.
func (b *Backend) Render(p *renderer.RenderProduct, desc renderer.Descriptor, frame uint64) (renderer.Output, error) {
	fs, err := b.samples(p, frame)
	if err != nil {
		return renderer.Output{}, err
	}

	h, w := fs.size.Height, fs.size.Width
	switch desc.Name {
	case renderer.LdrColor:
		return b.fillUint8(fs, h, w, func(s sample) [3]float32 { return s.color })
	case renderer.DiffuseAlbedo:
		return b.fillUint8(fs, h, w, func(s sample) [3]float32 { return s.albedo })
	case renderer.Normals:
		t, err := tensor.New[float32](b.cfg.Device, h, w, 4)
		if err != nil {
			return renderer.Output{}, err
		}
		d := t.Data()
		for i, s := range fs.pixels {
			d[i*4+0] = s.normal.X
			d[i*4+1] = s.normal.Y
			d[i*4+2] = s.normal.Z
		}
		return renderer.Output{Data: t}, nil
	case renderer.DistanceToImagePlane:
		t, err := tensor.New[float32](b.cfg.Device, h, w, 1)
		if err != nil {
			return renderer.Output{}, err
		}
		for i, s := range fs.pixels {
			t.Data()[i] = s.depth
		}
		return renderer.Output{Data: t}, nil
	case renderer.InstanceIDSegmentationFast:
		t, err := tensor.New[int32](b.cfg.Device, h, w, 1)
		if err != nil {
			return renderer.Output{}, err
		}
		for i, s := range fs.pixels {
			t.Data()[i] = s.id
		}
		labels := make(map[string]string, len(fs.labels))
		for k, v := range fs.labels {
			labels[k] = v
		}
		return renderer.Output{Data: t, Info: map[string]any{renderer.InfoIDToLabels: labels}}, nil
	default:
		return renderer.Output{}, fmt.Errorf("%w: %s", ErrUnsupportedAnnotator, desc.Name)
	}
}

func (b *Backend) fillUint8(fs *frameSamples, h, w int, pick func(sample) [3]float32) (renderer.Output, error) {
	t, err := tensor.New[uint8](b.cfg.Device, h, w, 4)
	if err != nil {
		return renderer.Output{}, err
	}
	d := t.Data()
	for i, s := range fs.pixels {
		c := pick(s)
		d[i*4+0] = toByte(c[0])
		d[i*4+1] = toByte(c[1])
		d[i*4+2] = toByte(c[2])
		d[i*4+3] = 255
	}
	return renderer.Output{Data: t}, nil
}

func toByte(v float32) uint8 {
	return uint8(math32.Max(0, math32.Min(1, v))*255 + 0.5)
}

// samples returns the cached ray cast for p at frame, rendering it when stale.
func (b *Backend) samples(p *renderer.RenderProduct, frame uint64) (*frameSamples, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fs, ok := b.cache[p.Path]; ok && fs.frame == frame {
		return fs, nil
	}
	fs, err := b.castProduct(p, frame)
	if err != nil {
		return nil, err
	}
	b.cache[p.Path] = fs
	return fs, nil
}

func (b *Backend) castProduct(p *renderer.RenderProduct, frame uint64) (*frameSamples, error) {
	res := p.Resolution
	tiledRes := p.TiledResolution()
	fs := &frameSamples{
		frame:  frame,
		pixels: make([]sample, tiledRes.Width*tiledRes.Height),
		labels: map[string]string{"0": "BACKGROUND"},
		size:   tiledRes,
	}
	// Tiles without a view stay black background.
	for i := range fs.pixels {
		fs.pixels[i].depth = math32.Inf(1)
	}

	hueOffset := float32(b.cfg.Seed%1000) / 1000
	cam := newPinhole(vec3{0, 1.4, 3.6}, vec3{0, 0.4, 0}, b.cfg.FOV, res.Width, res.Height)
	geom := tiled.Geometry{
		NumEnvs:  p.NumViews,
		Height:   res.Height,
		Width:    res.Width,
		Channels: 1,
		TilesX:   p.TilesX,
	}

	scenes := make([][]object, p.NumViews)
	for env := range scenes {
		scenes[env] = sceneFor(env, frame, hueOffset)
		for i, o := range scenes[env] {
			fs.labels[strconv.Itoa(instanceID(env, i, len(scenes[env])))] = primPath(env, o)
		}
	}

	var eg errgroup.Group
	for env := 0; env < p.NumViews; env++ {
		eg.Go(func() error {
			objects := scenes[env]
			for row := 0; row < res.Height; row++ {
				base := geom.SourceOffset(env, row, 0)
				for col := 0; col < res.Width; col++ {
					fs.pixels[base+col] = castPixel(cam.rayAt(row, col), cam.forward, objects, env)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	b.log.Debug("frame cast",
		zap.String("product", p.Path),
		zap.Uint64("frame", frame),
		zap.Int("views", p.NumViews),
	)
	return fs, nil
}

// instanceID numbers objects across all environments; 0 is background.
func instanceID(env, obj, perEnv int) int {
	return 1 + env*perEnv + obj
}

func castPixel(r ray, forward vec3, objects []object, env int) sample {
	h := intersect(r, objects)
	if h.obj < 0 {
		return sample{
			color: sky(r.Dir),
			depth: math32.Inf(1),
		}
	}
	p := r.at(h.t)
	albedo := albedoAt(objects[h.obj], p)
	return sample{
		id:     int32(instanceID(env, h.obj, len(objects))),
		normal: h.normal,
		albedo: albedo,
		color:  shade(albedo, p, h.normal, objects),
		depth:  h.t * r.Dir.dot(forward),
	}
}
