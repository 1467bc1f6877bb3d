package visualize

import (
	"fmt"
	"image"

	"github.com/Faultbox/gbuffer-camera/internal/sensor"
)

// Output keys read by the layouts.
const (
	KeyRGB        = "rgb"
	KeyNormals    = "normals"
	KeyAlbedo     = "gbuffer:albedo"
	KeyInstanceID = "instance_id_segmentation_fast"
)

// GBufferKeys are the outputs GBufferFigure needs.
var GBufferKeys = []string{KeyRGB, KeyNormals, KeyAlbedo, KeyInstanceID}

// NormalsKeys are the outputs NormalsFigure needs.
var NormalsKeys = []string{KeyRGB, KeyNormals}

// GBufferFigure shows rgb, normals, albedo and instance ids, one row per
// environment.
func GBufferFigure(data *sensor.Data) (*image.RGBA, error) {
	if err := RequireKeys(data, GBufferKeys...); err != nil {
		return nil, err
	}
	rgb, err := data.Uint8(KeyRGB)
	if err != nil {
		return nil, err
	}
	normals, err := data.Float32(KeyNormals)
	if err != nil {
		return nil, err
	}
	albedo, err := data.Uint8(KeyAlbedo)
	if err != nil {
		return nil, err
	}
	ids, err := data.Int32(KeyInstanceID)
	if err != nil {
		return nil, err
	}

	numEnvs := rgb.Dim(0)
	rows := make([][]Panel, 0, numEnvs)
	for env := 0; env < numEnvs; env++ {
		row := make([]Panel, 4)
		var imgs [4]image.Image
		if imgs[0], err = RGB(rgb, env); err != nil {
			return nil, err
		}
		if imgs[1], err = Normals(normals, env); err != nil {
			return nil, err
		}
		if imgs[2], err = Albedo(albedo, env); err != nil {
			return nil, err
		}
		if imgs[3], err = InstanceID(ids, env); err != nil {
			return nil, err
		}
		for i, title := range []string{"RGB Image", "Surface Normals", "Albedo", "Instance ID Segmentation"} {
			row[i] = Panel{Title: fmt.Sprintf("Env %d: %s", env, title), Image: imgs[i]}
		}
		rows = append(rows, row)
	}
	return Grid(fmt.Sprintf("Camera Data Visualization - %d Environments", numEnvs), rows)
}

// NormalsFigure shows rgb and normals of the first environment.
func NormalsFigure(data *sensor.Data) (*image.RGBA, error) {
	if err := RequireKeys(data, NormalsKeys...); err != nil {
		return nil, err
	}
	rgb, err := data.Uint8(KeyRGB)
	if err != nil {
		return nil, err
	}
	normals, err := data.Float32(KeyNormals)
	if err != nil {
		return nil, err
	}
	rgbImg, err := RGB(rgb, 0)
	if err != nil {
		return nil, err
	}
	normalsImg, err := Normals(normals, 0)
	if err != nil {
		return nil, err
	}
	return Grid("Camera Data Visualization - Initial Frame", [][]Panel{{
		{Title: "RGB Image", Image: rgbImg},
		{Title: "Surface Normals (RGB Encoded)", Image: normalsImg},
	}})
}
