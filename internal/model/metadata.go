package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"

	// NormCaffe matches the ResNet50 preprocess_input the lesion model was
	// trained with: RGB to BGR, then per-channel mean subtraction.
	NormCaffe    = "caffe"
	NormUnit     = "unit"
	NormImageNet = "imagenet"
)

// Classes is the HAM10000 label set in the model's output order.
var Classes = []string{"akiec", "bcc", "bkl", "df", "nv", "vasc", "mel"}

const defaultImageSize = 256

func DefaultMetadata() Metadata {
	return Metadata{
		InputShape:    []int64{1, defaultImageSize, defaultImageSize, 3},
		OutputShape:   []int64{1, int64(len(Classes))},
		Classes:       append([]string(nil), Classes...),
		ImageSize:     defaultImageSize,
		Layout:        LayoutNHWC,
		Normalization: NormCaffe,
	}
}

// LoadMetadata reads the JSON sidecar next to the model. A missing sidecar
// yields DefaultMetadata; fields left out of the file keep their defaults.
func LoadMetadata(path string) (Metadata, error) {
	metadata := DefaultMetadata()
	if path == "" {
		return metadata, nil
	}

	metaFile, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return metadata, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := metadata.normalize(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func (m *Metadata) normalize() error {
	m.Layout = strings.ToLower(strings.TrimSpace(m.Layout))
	m.Normalization = strings.ToLower(strings.TrimSpace(m.Normalization))
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.Normalization == "" {
		m.Normalization = NormCaffe
	}
	// Shapes the sidecar left at their defaults follow image_size, layout
	// and the class list.
	if m.ImageSize > 0 && equalShape(m.InputShape, DefaultMetadata().InputShape) {
		m.InputShape = inputShapeFor(m.Layout, m.ImageSize)
	}
	if equalShape(m.OutputShape, DefaultMetadata().OutputShape) {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
	return m.Validate()
}

func (m Metadata) Validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("invalid metadata: no classes")
	}
	seen := make(map[string]struct{}, len(m.Classes))
	for _, c := range m.Classes {
		if c == "" {
			return fmt.Errorf("invalid metadata: empty class name")
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("invalid metadata: duplicate class %q", c)
		}
		seen[c] = struct{}{}
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("invalid metadata: image_size must be positive, got %d", m.ImageSize)
	}
	switch m.Layout {
	case LayoutNHWC, LayoutNCHW:
	default:
		return fmt.Errorf("invalid metadata: unknown layout %q", m.Layout)
	}
	switch m.Normalization {
	case NormCaffe, NormUnit, NormImageNet:
	default:
		return fmt.Errorf("invalid metadata: unknown normalization %q", m.Normalization)
	}
	if want := 3 * m.ImageSize * m.ImageSize; m.InputSize() != want {
		return fmt.Errorf("invalid metadata: input_shape %v holds %d values, want %d", m.InputShape, m.InputSize(), want)
	}
	if len(m.OutputShape) == 0 || m.OutputShape[len(m.OutputShape)-1] != int64(len(m.Classes)) {
		return fmt.Errorf("invalid metadata: output_shape %v does not match %d classes", m.OutputShape, len(m.Classes))
	}
	return nil
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func inputShapeFor(layout string, size int) []int64 {
	s := int64(size)
	if layout == LayoutNCHW {
		return []int64{1, 3, s, s}
	}
	return []int64{1, s, s, 3}
}
