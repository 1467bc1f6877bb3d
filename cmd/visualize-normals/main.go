// Command visualize-normals renders the RGB image and surface normals of the
// first environment side by side.
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
	"github.com/Faultbox/gbuffer-camera/internal/visualize"
	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

func main() {
	config.ParseFlags()

	defaults := config.Default()
	defaults.Sim.NumEnvs = 1
	defaults.Camera.DataTypes = []string{"rgb", "normals"}
	defaults.Camera.GBufferDataTypes = nil

	cfg, err := config.LoadWithDefaults(defaults)
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
	if err := visualize.RequireKeys(data, visualize.NormalsKeys...); errors.As(err, &missing) {
		fmt.Printf("Error: %v\n", missing)
		return nil
	}

	rgb, err := data.Uint8(visualize.KeyRGB)
	if err != nil {
		return err
	}
	normals, err := data.Float32(visualize.KeyNormals)
	if err != nil {
		return err
	}
	rgb0, err := rgb.Env(0)
	if err != nil {
		return err
	}
	normals0, err := normals.Env(0)
	if err != nil {
		return err
	}
	fmt.Printf("RGB data shape: %s\n", tensor.FormatShape(rgb0.Shape()))
	fmt.Printf("Normals data shape: %s\n", tensor.FormatShape(normals0.Shape()))
	lo, hi := rgb0.MinMax()
	fmt.Printf("RGB data range: [%.3f, %.3f]\n", float64(lo), float64(hi))
	nlo, nhi := normals0.MinMax()
	fmt.Printf("Normals data range: [%.3f, %.3f]\n", nlo, nhi)

	img, err := visualize.NormalsFigure(data)
	if err != nil {
		return err
	}
	path, err := visualize.Save(img, cfg.Output.Path)
	if err != nil {
		return err
	}
	fmt.Printf("Visualization saved as '%s'\n", path)

	return s.Present(ctx, visualize.NormalsFigure, img)
}
