package app

import (
	"bytes"
	"context"
	"errors"
	"image"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/gbuffer-camera/internal/display"
	"github.com/Faultbox/gbuffer-camera/internal/stream"
	"github.com/Faultbox/gbuffer-camera/internal/visualize"
)

// Present shows img in a window unless headless and, when a stream address
// is configured, keeps stepping and broadcasting fig until ctx is done or
// the window is closed. It must run on the main thread.
func (s *Session) Present(ctx context.Context, fig Figure, img *image.RGBA) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headless := s.cfg.Display.Headless
	streaming := s.cfg.Stream.Addr != ""
	if headless && !streaming {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var frames chan image.Image
	if !headless {
		frames = make(chan image.Image, 1)
	}

	if streaming {
		hub := stream.NewHub(s.log.Named("stream"))
		srv := stream.NewServer(hub, s.log.Named("stream"))
		g.Go(func() error {
			return srv.ListenAndServe(gctx, s.cfg.Stream.Addr)
		})
		g.Go(func() error {
			publish := func(frame *image.RGBA) bool {
				var buf bytes.Buffer
				if err := visualize.Encode(&buf, frame); err != nil {
					s.log.Warn("frame dropped", zap.Error(err))
					return true
				}
				if frames != nil {
					select {
					case frames <- frame:
					default:
					}
				}
				return hub.Broadcast(gctx, buf.Bytes())
			}
			publish(img)
			return s.Stream(gctx, fig, publish)
		})
	}

	if !headless {
		err := s.show(gctx, img, frames)
		// Closing the window ends the session.
		cancel()
		werr := g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return ignoreCanceled(werr)
	}
	return ignoreCanceled(g.Wait())
}

func (s *Session) show(ctx context.Context, img *image.RGBA, frames <-chan image.Image) error {
	cfg := display.DefaultConfig()
	cfg.MaxWidth = s.cfg.Display.MaxWidth
	cfg.MaxHeight = s.cfg.Display.MaxHeight
	cfg.VSync = s.cfg.Display.VSync

	return display.Show(ctx, cfg, img, frames, s.log.Named("display"))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
