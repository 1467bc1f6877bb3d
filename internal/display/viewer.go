package display

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/gbuffer-camera/internal/logger"
)

// Viewer shows one image at a time. All methods must be called from the
// main thread.
type Viewer struct {
	win     *window
	log     *zap.Logger
	quad    *quadProgram
	texture uint32
	imgW    int
	imgH    int
}

// NewViewer opens a window sized for a width x height image.
func NewViewer(cfg Config, width, height int, log *zap.Logger) (*Viewer, error) {
	log = logger.OrNop(log)
	winW, winH := fitWindow(width, height, cfg.MaxWidth, cfg.MaxHeight)
	win, err := newWindow(cfg, winW, winH, log)
	if err != nil {
		return nil, err
	}
	v := &Viewer{win: win, log: log}

	if err := gl.Init(); err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	v.quad, err = newQuadProgram()
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to create shader program: %w", err)
	}

	gl.GenTextures(1, &v.texture)
	gl.BindTexture(gl.TEXTURE_2D, v.texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.ClearColor(0.1, 0.1, 0.15, 1.0)
	return v, nil
}

// SetImage uploads img as the texture shown by Draw.
func (v *Viewer) SetImage(img image.Image) {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != rgba.Bounds().Dx()*4 {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	v.imgW, v.imgH = rgba.Bounds().Dx(), rgba.Bounds().Dy()
	if v.imgW == 0 || v.imgH == 0 {
		return
	}

	gl.BindTexture(gl.TEXTURE_2D, v.texture)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(v.imgW), int32(v.imgH), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&rgba.Pix[0]))
}

// Draw renders the current image letterboxed into the window.
func (v *Viewer) Draw() {
	fbW, fbH := v.win.drawableSize()
	gl.Viewport(0, 0, int32(fbW), int32(fbH))
	gl.Clear(gl.COLOR_BUFFER_BIT)

	if v.imgW > 0 {
		x, y, w, h := letterbox(v.imgW, v.imgH, fbW, fbH)
		gl.Viewport(int32(x), int32(y), int32(w), int32(h))
		v.quad.draw(v.texture)
	}
	v.win.swap()
}

// PollQuit drains pending events and reports whether the user asked to
// close the window (close button, Escape or Q).
func (v *Viewer) PollQuit() bool {
	quit := false
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			quit = true
		case *sdl.KeyboardEvent:
			if e.State == sdl.PRESSED && (e.Keysym.Sym == sdl.K_ESCAPE || e.Keysym.Sym == sdl.K_q) {
				quit = true
			}
		}
	}
	return quit
}

// Run redraws until the window is closed or ctx is done. Images received on
// frames replace the shown one.
func (v *Viewer) Run(ctx context.Context, frames <-chan image.Image) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case img, ok := <-frames:
			if ok {
				v.SetImage(img)
			} else {
				frames = nil
			}
		default:
		}
		if v.PollQuit() {
			return nil
		}
		v.Draw()
		sdl.Delay(16)
	}
}

// Close releases GL resources and the window.
func (v *Viewer) Close() {
	if v.texture != 0 {
		gl.DeleteTextures(1, &v.texture)
	}
	if v.quad != nil {
		v.quad.delete()
	}
	v.win.close()
}

// Show opens a viewer for img and blocks until the window is closed or ctx
// is done. frames may be nil.
func Show(ctx context.Context, cfg Config, img image.Image, frames <-chan image.Image, log *zap.Logger) error {
	b := img.Bounds()
	v, err := NewViewer(cfg, b.Dx(), b.Dy(), log)
	if err != nil {
		return err
	}
	defer v.Close()
	v.SetImage(img)
	return v.Run(ctx, frames)
}
