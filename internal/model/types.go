package model

import (
	"math"
)

// Handle is a loaded inference artifact. Implementations are immutable once
// constructed and safe to call from multiple goroutines.
type Handle interface {
	Predict(input []float32) ([]float32, error)
	Metadata() Metadata
	Close() error
}

type Metadata struct {
	InputShape    []int64  `json:"input_shape"`
	OutputShape   []int64  `json:"output_shape"`
	Classes       []string `json:"classes"`
	ImageSize     int      `json:"image_size"`
	InputName     string   `json:"input_name,omitempty"`
	OutputName    string   `json:"output_name,omitempty"`
	Layout        string   `json:"layout"`
	Normalization string   `json:"normalization"`
}

// InputSize is the number of float32 values one forward pass expects.
func (m Metadata) InputSize() int {
	if len(m.InputShape) == 0 {
		return 0
	}
	n := 1
	for _, dim := range m.InputShape {
		n *= int(dim)
	}
	return n
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type Prediction struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Percent is the confidence as a percentage rounded to two decimals.
func (p Prediction) Percent() float64 {
	return math.Round(float64(p.Confidence)*10000) / 100
}

// Result holds every class of the model ordered by descending confidence.
type Result struct {
	Predictions []Prediction `json:"predictions"`
}

func (r *Result) Top() Prediction {
	if r == nil || len(r.Predictions) == 0 {
		return Prediction{}
	}
	return r.Predictions[0]
}

type PredictionResponse struct {
	Class        string       `json:"class"`
	Confidence   float64      `json:"confidence"`
	Tier         string       `json:"tier"`
	Predictions  []Prediction `json:"predictions"`
	Illustration string       `json:"illustration,omitempty"`
}
