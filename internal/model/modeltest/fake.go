// Package modeltest provides an in-memory model.Handle for tests that should
// not depend on the ONNX runtime.
package modeltest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Brownie44l1/lesion-api/internal/model"
)

// Fake returns Scores for every Predict call, or Err when set.
type Fake struct {
	Meta   model.Metadata
	Scores []float32
	Err    error

	calls  atomic.Int32
	mu     sync.Mutex
	closed bool
}

// New builds a Fake around metadata with a small input so tests stay fast.
// The highest score goes to top.
func New(top string) *Fake {
	meta := model.DefaultMetadata()
	meta.ImageSize = 8
	meta.InputShape = []int64{1, 8, 8, 3}

	scores := make([]float32, len(meta.Classes))
	rest := float32(0.1) / float32(len(scores)-1)
	for i, c := range meta.Classes {
		if c == top {
			scores[i] = 0.9
		} else {
			scores[i] = rest
		}
	}
	return &Fake{Meta: meta, Scores: scores}
}

func (f *Fake) Predict(input []float32) ([]float32, error) {
	f.calls.Add(1)

	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, errors.New("closed")
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if want := f.Meta.InputSize(); len(input) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", model.ErrShapeMismatch, want, len(input))
	}
	out := make([]float32, len(f.Scores))
	copy(out, f.Scores)
	return out, nil
}

func (f *Fake) Metadata() model.Metadata {
	return f.Meta
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Fake) Calls() int {
	return int(f.calls.Load())
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
