// Package classifier gates lesion classification on the background model
// load and runs one synchronous forward pass per request.
//
// The model handle lives in a write-once cell: the first outcome delivered
// through OnLoadOutcome (usually by Pump) is published atomically and never
// replaced. Reads happen through Classify from any goroutine.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/lesion-api/internal/loader"
	"github.com/Brownie44l1/lesion-api/internal/model"
	"github.com/Brownie44l1/lesion-api/internal/preprocess"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotReady = errors.New("model not ready")

const (
	OutcomeOK       = "ok"
	OutcomeNotReady = "not_ready"
	OutcomeError    = "error"
)

// ClassificationError wraps any decode, preprocessing or inference failure.
// The model handle stays usable after one.
type ClassificationError struct {
	Source string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("classification failed: %v", e.Err)
	}
	return fmt.Sprintf("classification of %s failed: %v", e.Source, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

type Metrics interface {
	ObserveClassification(outcome string, elapsed time.Duration)
}

type Status struct {
	Ready     bool   `json:"ready"`
	Progress  int    `json:"progress"`
	LoadError string `json:"error,omitempty"`
}

type Classifier struct {
	outcome  atomic.Pointer[loader.Outcome]
	progress atomic.Int32

	// inflight keeps classification to one request at a time.
	inflight sync.Mutex

	assetsDir string
	category  string
	logger    zerolog.Logger
	metrics   Metrics
}

type Option func(*Classifier)

func WithAssetsDir(dir string) Option {
	return func(c *Classifier) {
		c.assetsDir = dir
	}
}

// WithIllustrationCategory names the assets subdirectory holding one
// example image per label.
func WithIllustrationCategory(category string) Option {
	return func(c *Classifier) {
		if category != "" {
			c.category = category
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Classifier) {
		c.metrics = m
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{
		assetsDir: "assets",
		category:  "melanoma",
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "classifier").Logger()
	return c
}

// OnLoadOutcome records the loader's terminal event. Only the first call has
// an effect; it reports whether this call was the one recorded.
func (c *Classifier) OnLoadOutcome(o loader.Outcome) bool {
	if !c.outcome.CompareAndSwap(nil, &o) {
		c.logger.Warn().Msg("ignoring repeated load outcome")
		return false
	}
	if o.OK() {
		c.progress.Store(100)
		c.logger.Info().Strs("classes", o.Handle.Metadata().Classes).Msg("model ready")
	} else {
		c.logger.Error().Str("reason", o.Message()).Msg("model unavailable")
	}
	return true
}

// Pump drains the loader channel in order on the calling goroutine,
// forwarding ticks to onProgress and handing the outcome to OnLoadOutcome.
func (c *Classifier) Pump(ctx context.Context, events <-chan loader.Event, onProgress func(int)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if c.outcome.Load() == nil {
					err := errors.New("loader stopped without an outcome")
					c.OnLoadOutcome(loader.Failure(err))
					return err
				}
				return nil
			}
			switch ev.Kind {
			case loader.KindProgress:
				c.progress.Store(int32(ev.Progress))
				if onProgress != nil {
					onProgress(ev.Progress)
				}
			case loader.KindOutcome:
				c.OnLoadOutcome(ev.Outcome)
				return nil
			}
		}
	}
}

func (c *Classifier) Status() Status {
	s := Status{Progress: int(c.progress.Load())}
	if o := c.outcome.Load(); o != nil {
		s.Ready = o.OK()
		s.LoadError = o.Message()
	}
	return s
}

func (c *Classifier) Ready() bool {
	_, ok := c.handle()
	return ok
}

func (c *Classifier) Metadata() (model.Metadata, bool) {
	h, ok := c.handle()
	if !ok {
		return model.Metadata{}, false
	}
	return h.Metadata(), true
}

func (c *Classifier) handle() (model.Handle, bool) {
	o := c.outcome.Load()
	if o == nil || !o.OK() {
		return nil, false
	}
	return o.Handle, true
}

// Classify decodes the image at path and ranks every class.
func (c *Classifier) Classify(path string) (*model.Result, error) {
	return c.run(path, func(h model.Handle) ([]float32, error) {
		return preprocess.File(path, h.Metadata())
	})
}

func (c *Classifier) ClassifyImage(img image.Image) (*model.Result, error) {
	return c.run("", func(h model.Handle) ([]float32, error) {
		return preprocess.Tensor(img, h.Metadata())
	})
}

// ClassifyTensor skips preprocessing; input must already match the model's
// input shape.
func (c *Classifier) ClassifyTensor(input []float32) (*model.Result, error) {
	return c.run("", func(h model.Handle) ([]float32, error) {
		if want := h.Metadata().InputSize(); len(input) != want {
			return nil, fmt.Errorf("%w: expected %d values, got %d", model.ErrShapeMismatch, want, len(input))
		}
		return input, nil
	})
}

func (c *Classifier) run(source string, prepare func(model.Handle) ([]float32, error)) (*model.Result, error) {
	started := time.Now()

	h, ok := c.handle()
	if !ok {
		c.observe(OutcomeNotReady, started)
		return nil, ErrNotReady
	}

	c.inflight.Lock()
	defer c.inflight.Unlock()

	result, err := c.infer(h, prepare)
	if err != nil {
		c.observe(OutcomeError, started)
		c.logger.Warn().Err(err).Str("source", source).Msg("classification failed")
		return nil, &ClassificationError{Source: source, Err: err}
	}

	c.observe(OutcomeOK, started)
	top := result.Top()
	c.logger.Info().
		Str("source", source).
		Str("label", top.Label).
		Float64("confidence", top.Percent()).
		Dur("elapsed", time.Since(started)).
		Msg("classified")
	return result, nil
}

func (c *Classifier) infer(h model.Handle, prepare func(model.Handle) ([]float32, error)) (result *model.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic during inference: %v", r)
		}
	}()

	input, err := prepare(h)
	if err != nil {
		return nil, err
	}
	scores, err := h.Predict(input)
	if err != nil {
		return nil, err
	}
	return model.Rank(scores, h.Metadata().Classes)
}

func (c *Classifier) observe(outcome string, started time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveClassification(outcome, time.Since(started))
	}
}

// Illustration returns the example image for label, or "" when the asset
// is missing.
func (c *Classifier) Illustration(label string) string {
	if label == "" {
		return ""
	}
	path := filepath.Join(c.assetsDir, c.category, strings.ToLower(label)+".jpg")
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}

func (c *Classifier) Close() error {
	h, ok := c.handle()
	if !ok {
		return nil
	}
	return h.Close()
}
