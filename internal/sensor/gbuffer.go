package sensor

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/Faultbox/gbuffer-camera/internal/logger"
	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

// GBuffer adds material buffers to a Provider. Each type maps to exactly one
// annotator and one output key, "gbuffer:<type>".
type GBuffer struct {
	types []string
	log   *zap.Logger

	base       Provider
	paths      []string
	annotators map[string]*renderer.Annotator
}

// NewGBuffer validates types before anything is attached.
func NewGBuffer(types []string, log *zap.Logger) (*GBuffer, error) {
	if err := validateGBufferTypes(types); err != nil {
		return nil, err
	}
	return &GBuffer{
		types: slices.Clone(types),
		log:   logger.OrNop(log),
	}, nil
}

// Types returns the configured G-buffer data types.
func (g *GBuffer) Types() []string {
	return slices.Clone(g.types)
}

// Attached reports whether the extension is bound to a provider.
func (g *GBuffer) Attached() bool {
	return g.base != nil
}

// Attach creates and attaches the annotators to base's render products and
// allocates a buffer per type in base's data object. On failure nothing
// stays attached and base's data is unchanged.
func (g *GBuffer) Attach(rctx *renderer.Context, base Provider) error {
	if g.base != nil {
		return ErrAlreadyInitialized
	}
	paths := base.RenderProductPaths()
	if len(paths) == 0 {
		return fmt.Errorf("%w: provider has no render products", ErrNotInitialized)
	}

	annotators := make(map[string]*renderer.Annotator, len(g.types))
	rollback := func() {
		for _, a := range annotators {
			_ = a.Detach(paths...)
		}
	}
	for _, dt := range g.types {
		a, err := rctx.NewAnnotator(gbufferTypes[dt].Annotator)
		if err == nil {
			err = a.Attach(paths...)
		}
		if err != nil {
			rollback()
			return fmt.Errorf("attaching G-buffer %q: %w", dt, err)
		}
		annotators[dt] = a
	}
	g.log.Debug("G-buffer annotators attached", zap.Strings("types", g.types), zap.Strings("products", paths))

	h, w := base.Resolution()
	outputs := make(map[string]tensor.Any, len(g.types))
	for _, dt := range g.types {
		buf, err := allocate(annotators[dt].Descriptor().DType, base.Device(), base.NumEnvs(), h, w, gbufferTypes[dt].Channels)
		if err != nil {
			rollback()
			return err
		}
		outputs[GBufferKey(dt)] = buf
	}
	data := base.Data()
	for key, buf := range outputs {
		data.Output[key] = buf
	}

	g.base = base
	g.paths = paths
	g.annotators = annotators
	g.log.Info("G-buffer initialized", zap.Strings("types", g.types))
	return nil
}

// Update fetches every G-buffer annotator and reshapes it into the provider's
// data object. envIDs restricts which environments are written.
func (g *GBuffer) Update(envIDs ...int) error {
	if g.base == nil {
		return ErrNotInitialized
	}
	tilesX, _ := g.base.TilingGrid()
	l := g.base.Launch(envIDs)
	data := g.base.Data()
	for _, dt := range g.types {
		key := GBufferKey(dt)
		info, err := fetchInto(g.annotators[dt], data.Output[key], gbufferTypes[dt].Channels, tilesX, l)
		if err != nil {
			return fmt.Errorf("updating %q: %w", key, err)
		}
		if info != nil {
			data.Info[dt] = info
		}
	}
	return nil
}

// Detach releases every annotator. The allocated buffers stay in the data
// object. Detaching twice is a no-op.
func (g *GBuffer) Detach() error {
	if g.base == nil {
		return nil
	}
	var errs []error
	for _, a := range g.annotators {
		errs = append(errs, a.Detach(g.paths...))
	}
	g.annotators = nil
	g.base = nil
	g.paths = nil
	g.log.Debug("G-buffer annotators detached")
	return errors.Join(errs...)
}
