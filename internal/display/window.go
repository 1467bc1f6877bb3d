// Package display shows visualizations in an SDL2 window with an OpenGL
// textured quad.
package display

import (
	"fmt"
	"runtime"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"
)

func init() {
	// OpenGL calls must be made from the main thread
	runtime.LockOSThread()
}

// Config holds window configuration.
type Config struct {
	Title string
	// MaxWidth and MaxHeight bound the initial window size. Larger images
	// are shown scaled down.
	MaxWidth  int
	MaxHeight int
	VSync     bool
}

// DefaultConfig returns a vsynced window bounded to 1600x1000.
func DefaultConfig() Config {
	return Config{
		Title:     "Camera Data Visualization",
		MaxWidth:  1600,
		MaxHeight: 1000,
		VSync:     true,
	}
}

// window wraps the SDL2 window and its OpenGL context.
type window struct {
	sdlWindow *sdl.Window
	glContext sdl.GLContext
	log       *zap.Logger
}

func newWindow(cfg Config, width, height int, log *zap.Logger) (*window, error) {
	log.Info("initializing SDL2")
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("SDL_Init failed: %w", err)
	}

	// OpenGL 4.1 Core Profile (max supported on macOS)
	sdl.GLSetAttribute(sdl.GL_CONTEXT_MAJOR_VERSION, 4)
	sdl.GLSetAttribute(sdl.GL_CONTEXT_MINOR_VERSION, 1)
	sdl.GLSetAttribute(sdl.GL_CONTEXT_PROFILE_MASK, sdl.GL_CONTEXT_PROFILE_CORE)
	sdl.GLSetAttribute(sdl.GL_DOUBLEBUFFER, 1)

	sdlWindow, err := sdl.CreateWindow(
		cfg.Title,
		sdl.WINDOWPOS_CENTERED,
		sdl.WINDOWPOS_CENTERED,
		int32(width),
		int32(height),
		sdl.WINDOW_OPENGL|sdl.WINDOW_RESIZABLE,
	)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("SDL_CreateWindow failed: %w", err)
	}

	glContext, err := sdlWindow.GLCreateContext()
	if err != nil {
		sdlWindow.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("SDL_GL_CreateContext failed: %w", err)
	}

	interval := 0
	if cfg.VSync {
		interval = 1
	}
	if err := sdl.GLSetSwapInterval(interval); err != nil {
		log.Warn("failed to set swap interval", zap.Error(err))
	}

	log.Info("window created",
		zap.String("title", cfg.Title),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Bool("vsync", cfg.VSync),
	)
	return &window{sdlWindow: sdlWindow, glContext: glContext, log: log}, nil
}

func (w *window) close() {
	w.log.Info("closing window")
	if w.glContext != nil {
		sdl.GLDeleteContext(w.glContext)
	}
	if w.sdlWindow != nil {
		w.sdlWindow.Destroy()
	}
	sdl.Quit()
}

func (w *window) swap() {
	w.sdlWindow.GLSwap()
}

// drawableSize returns the framebuffer size, which differs from the window
// size on high-DPI displays.
func (w *window) drawableSize() (int, int) {
	width, height := w.sdlWindow.GLGetDrawableSize()
	return int(width), int(height)
}

// fitWindow scales an image size down, keeping its aspect, until it fits
// inside maxW x maxH. Non-positive bounds leave that axis unbounded.
func fitWindow(imgW, imgH, maxW, maxH int) (int, int) {
	scale := 1.0
	if maxW > 0 && imgW > maxW {
		scale = float64(maxW) / float64(imgW)
	}
	if maxH > 0 && imgH > maxH {
		scale = min(scale, float64(maxH)/float64(imgH))
	}
	return max(1, int(float64(imgW)*scale)), max(1, int(float64(imgH)*scale))
}

// letterbox returns the viewport that shows an imgW x imgH image as large as
// possible inside a winW x winH framebuffer, centred.
func letterbox(imgW, imgH, winW, winH int) (x, y, w, h int) {
	if imgW <= 0 || imgH <= 0 || winW <= 0 || winH <= 0 {
		return 0, 0, max(winW, 0), max(winH, 0)
	}
	w, h = winW, winW*imgH/imgW
	if h > winH {
		w, h = winH*imgW/imgH, winH
	}
	return (winW - w) / 2, (winH - h) / 2, w, h
}
