// Package config handles visualization configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Faultbox/gbuffer-camera/internal/sensor"
	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

// ErrInvalid is wrapped by every Validate error.
var ErrInvalid = errors.New("invalid config")

// Config holds all settings of a visualization run.
type Config struct {
	Sim     SimConfig     `yaml:"sim"`
	Camera  CameraConfig  `yaml:"camera"`
	Output  OutputConfig  `yaml:"output"`
	Display DisplayConfig `yaml:"display"`
	Stream  StreamConfig  `yaml:"stream"`
	Logging LoggingConfig `yaml:"logging"`
}

// SimConfig holds simulation settings.
type SimConfig struct {
	NumEnvs int    `yaml:"num_envs"`
	Device  string `yaml:"device"`
	Steps   int    `yaml:"steps"` // Frames stepped after reset before capture
	Seed    int64  `yaml:"seed"`
}

// CameraConfig holds camera sensor settings.
type CameraConfig struct {
	Prim             string   `yaml:"prim"`
	Width            int      `yaml:"width"`
	Height           int      `yaml:"height"`
	DataTypes        []string `yaml:"data_types"`
	GBufferDataTypes []string `yaml:"gbuffer_data_types"`
	Workers          int      `yaml:"workers"` // 0 = all CPUs
	FOV              float32  `yaml:"fov"`
}

// OutputConfig holds where the visualization is written.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// DisplayConfig holds interactive window settings.
type DisplayConfig struct {
	Headless  bool `yaml:"headless"`
	MaxWidth  int  `yaml:"max_width"`
	MaxHeight int  `yaml:"max_height"`
	VSync     bool `yaml:"vsync"`
}

// StreamConfig holds live websocket streaming settings.
type StreamConfig struct {
	Addr     string        `yaml:"addr"` // Empty disables streaming
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	cam := sensor.DefaultCameraConfig()
	return &Config{
		Sim: SimConfig{
			NumEnvs: 4,
			Device:  tensor.DeviceCPU,
			Steps:   1,
		},
		Camera: CameraConfig{
			Prim:             cam.Prim,
			Width:            cam.Width,
			Height:           cam.Height,
			DataTypes:        cam.DataTypes,
			GBufferDataTypes: cam.GBufferDataTypes,
			FOV:              60,
		},
		Output: OutputConfig{
			Path: "camera_visualization.png",
		},
		Display: DisplayConfig{
			Headless:  false,
			MaxWidth:  1600,
			MaxHeight: 1000,
			VSync:     true,
		},
		Stream: StreamConfig{
			Addr:     "",
			Interval: 100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.Sim.NumEnvs < 1:
		return fmt.Errorf("%w: sim.num_envs must be >= 1, got %d", ErrInvalid, c.Sim.NumEnvs)
	case c.Sim.Steps < 0:
		return fmt.Errorf("%w: sim.steps must be >= 0, got %d", ErrInvalid, c.Sim.Steps)
	case c.Sim.Device == "":
		return fmt.Errorf("%w: sim.device is empty", ErrInvalid)
	case c.Camera.FOV <= 0 || c.Camera.FOV >= 180:
		return fmt.Errorf("%w: camera.fov must be in (0, 180), got %v", ErrInvalid, c.Camera.FOV)
	case c.Stream.Addr != "" && c.Stream.Interval <= 0:
		return fmt.Errorf("%w: stream.interval must be > 0, got %v", ErrInvalid, c.Stream.Interval)
	}
	if err := c.Sensor().Validate(); err != nil {
		return fmt.Errorf("%w: camera: %w", ErrInvalid, err)
	}
	return nil
}

// Sensor returns the camera sensor configuration, placed on the sim device.
func (c *Config) Sensor() sensor.CameraConfig {
	return sensor.CameraConfig{
		Prim:             c.Camera.Prim,
		Width:            c.Camera.Width,
		Height:           c.Camera.Height,
		DataTypes:        append([]string(nil), c.Camera.DataTypes...),
		GBufferDataTypes: append([]string(nil), c.Camera.GBufferDataTypes...),
		Device:           c.Sim.Device,
		Workers:          c.Camera.Workers,
	}
}
