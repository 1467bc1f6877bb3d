// Command visualize-gbuffer renders RGB, surface normals, albedo and
// instance segmentation for every environment into one image.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Faultbox/gbuffer-camera/internal/app"
	"github.com/Faultbox/gbuffer-camera/internal/config"
	"github.com/Faultbox/gbuffer-camera/internal/logger"
	"github.com/Faultbox/gbuffer-camera/internal/renderer"
	"github.com/Faultbox/gbuffer-camera/internal/visualize"
)

func main() {
	config.ParseFlags()

	cfg, err := config.LoadWithDefaults(config.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("visualization failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := app.Start(cfg, logger.Named("app"))
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Println("Environment created successfully!")
	fmt.Printf("Number of environments: %d\n", s.Runtime.NumEnvs)
	fmt.Printf("Environment device: %s\n", s.Runtime.Device)
	fmt.Printf("Camera device: %s\n", cfg.Sim.Device)

	data := s.Data()
	fmt.Printf("Camera data types: %v\n", data.Keys())

	var missing *visualize.MissingKeysError
	if err := visualize.RequireKeys(data, visualize.GBufferKeys...); errors.As(err, &missing) {
		fmt.Printf("Error: %v\n", missing)
		return nil
	}

	for _, row := range []struct{ name, key string }{
		{"RGB", visualize.KeyRGB},
		{"Normals", visualize.KeyNormals},
		{"Albedo", visualize.KeyAlbedo},
		{"Instance ID", visualize.KeyInstanceID},
	} {
		fmt.Println(visualize.Stats(row.name, data.Output[row.key]))
	}
	fmt.Printf("idToLabels: %s\n", visualize.Labels(data.Info[visualize.KeyInstanceID], renderer.InfoIDToLabels))

	img, err := visualize.GBufferFigure(data)
	if err != nil {
		return err
	}
	path, err := visualize.Save(img, cfg.Output.Path)
	if err != nil {
		return err
	}
	fmt.Printf("Visualization saved as '%s'\n", path)

	return s.Present(ctx, visualize.GBufferFigure, img)
}
