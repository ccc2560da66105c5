package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrShapeMismatch = errors.New("shape mismatch")

// probabilityTolerance is how far a score vector may sum from 1 and still be
// treated as already normalised.
const probabilityTolerance = 1e-3

// Rank pairs scores with classes and orders them by descending confidence.
// Scores that do not already form a probability vector go through softmax.
func Rank(scores []float32, classes []string) (*Result, error) {
	if len(scores) != len(classes) {
		return nil, fmt.Errorf("%w: %d scores for %d classes", ErrShapeMismatch, len(scores), len(classes))
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrShapeMismatch)
	}

	probs := make([]float64, len(scores))
	isDistribution := true
	var sum float64
	for i, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid score for %s: %v", classes[i], s)
		}
		if v < 0 || v > 1 {
			isDistribution = false
		}
		probs[i] = v
		sum += v
	}
	if !isDistribution || math.Abs(sum-1) > probabilityTolerance {
		softmax(probs)
	}

	predictions := make([]Prediction, len(classes))
	for i, class := range classes {
		predictions[i] = Prediction{Label: class, Confidence: clamp01(float32(probs[i]))}
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Confidence > predictions[j].Confidence
	})

	return &Result{Predictions: predictions}, nil
}

func softmax(v []float64) {
	maxVal := v[0]
	for _, x := range v[1:] {
		if x > maxVal {
			maxVal = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - maxVal)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

func clamp01(f float32) float32 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
