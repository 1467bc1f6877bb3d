package renderer

import (
	"fmt"
	"slices"
)

type cachedOutput struct {
	frame uint64
	out   Output
}

// Annotator produces one named channel of per-frame output for the render
// products it is attached to. Output is rendered once per frame and cached.
type Annotator struct {
	ctx  *Context
	desc Descriptor

	// Guarded by ctx.mu.
	attached []string
	cache    map[string]cachedOutput
}

// Name returns the annotator kind.
func (a *Annotator) Name() string {
	return a.desc.Name
}

// Descriptor returns what the annotator produces.
func (a *Annotator) Descriptor() Descriptor {
	return a.desc
}

// Attach binds the annotator to render products. Re-attaching is a no-op.
func (a *Annotator) Attach(paths ...string) error {
	c := a.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	for _, p := range paths {
		if _, ok := c.products[p]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownProduct, p)
		}
	}
	for _, p := range paths {
		if !slices.Contains(a.attached, p) {
			a.attached = append(a.attached, p)
		}
	}
	if len(a.attached) > 0 && !slices.Contains(c.annotators, a) {
		c.annotators = append(c.annotators, a)
	}
	return nil
}

// Detach releases the annotator from render products. Paths the annotator
// is not attached to are ignored.
func (a *Annotator) Detach(paths ...string) error {
	c := a.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		a.detachLocked(p)
	}
	c.pruneLocked()
	return nil
}

func (a *Annotator) detachLocked(path string) {
	a.attached = slices.DeleteFunc(a.attached, func(p string) bool { return p == path })
	delete(a.cache, path)
}

// Attached returns the render products the annotator is bound to.
func (a *Annotator) Attached() []string {
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()
	return slices.Clone(a.attached)
}

// Data returns the current frame's output for the first attached product.
func (a *Annotator) Data() (Output, error) {
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()
	if a.ctx.closed {
		return Output{}, ErrContextClosed
	}
	if len(a.attached) == 0 {
		return Output{}, fmt.Errorf("%w: %s", ErrNotAttached, a.desc.Name)
	}
	return a.dataLocked(a.attached[0])
}

// DataFor returns the current frame's output for a specific product.
func (a *Annotator) DataFor(path string) (Output, error) {
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()
	if a.ctx.closed {
		return Output{}, ErrContextClosed
	}
	if !slices.Contains(a.attached, path) {
		return Output{}, fmt.Errorf("%w: %s on %s", ErrNotAttached, a.desc.Name, path)
	}
	return a.dataLocked(path)
}

func (a *Annotator) dataLocked(path string) (Output, error) {
	c := a.ctx
	if c.closed {
		return Output{}, ErrContextClosed
	}
	if hit, ok := a.cache[path]; ok && hit.frame == c.frame {
		return hit.out, nil
	}
	p, ok := c.products[path]
	if !ok {
		return Output{}, fmt.Errorf("%w: %s", ErrUnknownProduct, path)
	}
	out, err := c.render(p, a.desc)
	if err != nil {
		return Output{}, err
	}
	a.cache[path] = cachedOutput{frame: c.frame, out: out}
	return out, nil
}
