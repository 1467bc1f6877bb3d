// Package renderer holds the renderer-side state that camera sensors consume:
// render products, the annotator registry and per-frame annotator output.
//
// All state lives on an explicit Context. Nothing in this package is global.
package renderer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

// Renderer errors.
var (
	ErrUnknownAnnotator   = errors.New("unknown annotator")
	ErrDuplicateAnnotator = errors.New("annotator already registered")
	ErrUnknownProduct     = errors.New("unknown render product")
	ErrNotAttached        = errors.New("annotator not attached")
	ErrContextClosed      = errors.New("renderer context closed")
	ErrBackendOutput      = errors.New("backend output does not match annotator descriptor")
)

// Built-in annotator names.
const (
	LdrColor                   = "LdrColor"
	Normals                    = "Normals"
	DiffuseAlbedo              = "DiffuseAlbedo"
	InstanceIDSegmentationFast = "InstanceIdSegmentationFast"
	DistanceToImagePlane       = "DistanceToImagePlane"
)

// InfoIDToLabels is the info key carrying the segmentation label table.
const InfoIDToLabels = "idToLabels"

// Descriptor describes what an annotator produces for one tiled render product.
type Descriptor struct {
	Name     string
	DType    tensor.DType
	Channels int
	// HasInfo marks annotators whose output carries an info mapping.
	HasInfo bool
}

// Registry maps annotator names to their descriptors. The zero Registry is
// empty and ready to use.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]Descriptor
}

// NewRegistry returns a registry preloaded with the built-in annotators.
func NewRegistry() *Registry {
	r := &Registry{descs: make(map[string]Descriptor)}
	for _, s := range []Descriptor{
		{Name: LdrColor, DType: tensor.Uint8, Channels: 4},
		{Name: Normals, DType: tensor.Float32, Channels: 4},
		{Name: DiffuseAlbedo, DType: tensor.Uint8, Channels: 4},
		{Name: InstanceIDSegmentationFast, DType: tensor.Int32, Channels: 1, HasInfo: true},
		{Name: DistanceToImagePlane, DType: tensor.Float32, Channels: 1},
	} {
		r.descs[s.Name] = s
	}
	return r
}

// Register adds a custom annotator descriptor.
func (r *Registry) Register(s Descriptor) error {
	if s.Name == "" || s.Channels < 1 {
		return fmt.Errorf("invalid annotator descriptor %+v", s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.descs[s.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAnnotator, s.Name)
	}
	if r.descs == nil {
		r.descs = make(map[string]Descriptor)
	}
	r.descs[s.Name] = s
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.descs[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownAnnotator, name)
	}
	return s, nil
}

// Names returns the registered annotator names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descs))
	for n := range r.descs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
