package visualize

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Faultbox/gbuffer-camera/internal/sensor"
	"github.com/Faultbox/gbuffer-camera/pkg/tensor"
)

// DefaultOutput is the file name visualizations are saved under.
const DefaultOutput = "camera_visualization.png"

// Stats describes a buffer on one line, e.g.
// "RGB data: shape=(4, 128, 128, 3), dtype=uint8, min=0, max=255".
func Stats(name string, t tensor.Any) string {
	var lo, hi any
	switch b := t.(type) {
	case *tensor.Tensor[uint8]:
		lo, hi = b.MinMax()
	case *tensor.Tensor[int32]:
		lo, hi = b.MinMax()
	case *tensor.Tensor[float32]:
		lo, hi = b.MinMax()
	default:
		return fmt.Sprintf("%s data: shape=%s, dtype=%s", name, tensor.FormatShape(t.Shape()), t.DType())
	}
	return fmt.Sprintf("%s data: shape=%s, dtype=%s, min=%v, max=%v",
		name, tensor.FormatShape(t.Shape()), t.DType(), lo, hi)
}

// MissingKeysError lists outputs a visualization needs but the camera lacks.
type MissingKeysError struct {
	Missing   []string
	Available []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("camera data does not contain %s; available data types: [%s]",
		quoteJoin(e.Missing, " and "), quoteJoin(e.Available, ", "))
}

func quoteJoin(keys []string, sep string) string {
	q := make([]string, len(keys))
	for i, k := range keys {
		q[i] = fmt.Sprintf("%q", k)
	}
	return strings.Join(q, sep)
}

// RequireKeys returns a *MissingKeysError unless every key is present in data.
func RequireKeys(data *sensor.Data, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !data.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingKeysError{Missing: missing, Available: data.Keys()}
}

// Labels formats an idToLabels table sorted by numeric id.
func Labels(info map[string]any, key string) string {
	raw, ok := info[key]
	if !ok {
		return "{}"
	}
	labels, ok := raw.(map[string]string)
	if !ok {
		return fmt.Sprint(raw)
	}
	ids := make([]string, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%q: %q", id, labels[id])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// Save writes img as a PNG file, creating parent directories. An empty path
// saves to DefaultOutput in the working directory.
func Save(img image.Image, path string) (string, error) {
	if path == "" {
		path = DefaultOutput
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	if err := encodeAndClose(file, img); err != nil {
		return "", err
	}
	return path, nil
}

// encodeAndClose writes img to w and closes it. A failed Close is reported
// since the PNG may not be fully written.
func encodeAndClose(w io.WriteCloser, img image.Image) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing file: %w", cerr)
		}
	}()
	return Encode(w, img)
}
