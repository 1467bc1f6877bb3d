package sensor

import (
	"fmt"

	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

// CameraConfig configures a tiled camera and its G-buffer extension.
type CameraConfig struct {
	// Prim is the scene path pattern of the per-environment cameras.
	Prim   string
	Width  int
	Height int
	// DataTypes are the base outputs, e.g. "rgb", "normals".
	DataTypes []string
	// GBufferDataTypes are the material outputs, stored as "gbuffer:<type>".
	GBufferDataTypes []string
	// Device the output buffers live on.
	Device string
	// Workers caps reshape parallelism. Zero uses every available CPU.
	Workers int
}

// DefaultCameraConfig returns a camera producing rgb, normals, instance ids and albedo.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Prim:             "/World/envs/env_.*/Camera",
		Width:            128,
		Height:           128,
		DataTypes:        []string{"rgb", "normals", "instance_id_segmentation_fast"},
		GBufferDataTypes: []string{"albedo"},
		Device:           tensor.DeviceCPU,
	}
}

// Validate reports configuration errors, including unsupported G-buffer
// types. It never touches the renderer.
func (c CameraConfig) Validate() error {
	if err := c.validateBase(); err != nil {
		return err
	}
	return validateGBufferTypes(c.GBufferDataTypes)
}

func (c CameraConfig) validateBase() error {
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, c.Workers)
	}
	seen := make(map[string]bool)
	for _, dt := range c.DataTypes {
		if _, ok := dataTypes[dt]; !ok {
			return fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedDataType, dt, DataTypes())
		}
		if seen[dt] {
			return fmt.Errorf("%w: data type %q listed twice", ErrInvalidConfig, dt)
		}
		seen[dt] = true
	}
	return nil
}

func validateGBufferTypes(types []string) error {
	seen := make(map[string]bool)
	for _, dt := range types {
		if _, ok := gbufferTypes[dt]; !ok {
			return fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedGBufferType, dt, GBufferTypes())
		}
		if seen[dt] {
			return fmt.Errorf("%w: G-buffer type %q listed twice", ErrInvalidConfig, dt)
		}
		seen[dt] = true
	}
	return nil
}
