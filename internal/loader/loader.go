// Package loader runs the one-shot background model load and reports
// progress ticks and the final outcome over a channel.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/lesion-api/internal/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultStep     = 10
	defaultInterval = 200 * time.Millisecond
)

var ErrAlreadyStarted = errors.New("loader already started")

// LoadFunc performs the blocking deserialisation of the artifact at path.
type LoadFunc func(ctx context.Context, path string) (model.Handle, error)

// Observer is told how long the load took and whether it failed.
type Observer interface {
	ObserveLoad(elapsed time.Duration, err error)
}

type Loader struct {
	load     LoadFunc
	step     int
	interval time.Duration
	logger   zerolog.Logger
	observer Observer

	state atomic.Int32
}

type Option func(*Loader)

// WithTicks sets the percentage distance between progress ticks.
func WithTicks(step int) Option {
	return func(l *Loader) {
		if step > 0 && step <= 100 {
			l.step = step
		}
	}
}

// WithInterval sets the cosmetic delay between ticks. Zero disables pacing.
func WithInterval(d time.Duration) Option {
	return func(l *Loader) {
		if d >= 0 {
			l.interval = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(l *Loader) {
		l.observer = o
	}
}

func New(load LoadFunc, opts ...Option) *Loader {
	l := &Loader{
		load:     load,
		step:     defaultStep,
		interval: defaultInterval,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With().Str("component", "loader").Logger()
	return l
}

func (l *Loader) State() State {
	return State(l.state.Load())
}

// Start spawns the load and returns immediately. The returned channel yields
// non-decreasing progress ticks, then exactly one outcome, then closes. It is
// buffered for every event, so the worker never waits on the consumer.
// A Loader runs at most once; later calls return ErrAlreadyStarted.
func (l *Loader) Start(ctx context.Context, path string) (<-chan Event, error) {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateLoading)) {
		return nil, ErrAlreadyStarted
	}

	events := make(chan Event, (100+l.step-1)/l.step+2)
	go l.run(ctx, path, events)
	return events, nil
}

func (l *Loader) run(ctx context.Context, path string, events chan<- Event) {
	defer close(events)

	l.logger.Info().Str("path", path).Msg("loading model")
	started := time.Now()

	outcome := l.execute(ctx, path, events)

	elapsed := time.Since(started)
	if l.observer != nil {
		l.observer.ObserveLoad(elapsed, outcome.Err)
	}

	if outcome.OK() {
		l.state.Store(int32(StateSucceeded))
		l.logger.Info().Str("path", path).Dur("elapsed", elapsed).Msg("model loaded")
	} else {
		l.state.Store(int32(StateFailed))
		l.logger.Error().Err(outcome.Err).Str("path", path).Dur("elapsed", elapsed).Msg("model load failed")
	}

	events <- Event{Kind: KindOutcome, Outcome: outcome}
}

func (l *Loader) execute(ctx context.Context, path string, events chan<- Event) Outcome {
	for p := 0; p < 100; p += l.step {
		events <- Event{Kind: KindProgress, Progress: p}
		if err := l.pause(ctx); err != nil {
			return Failure(err)
		}
	}

	handle, err := l.safeLoad(ctx, path)
	events <- Event{Kind: KindProgress, Progress: 100}
	if err != nil {
		return Failure(err)
	}
	return Success(handle)
}

func (l *Loader) pause(ctx context.Context) error {
	if l.interval == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Loader) safeLoad(ctx context.Context, path string) (handle model.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle = nil
			err = fmt.Errorf("panic during model load: %v", r)
		}
	}()

	if l.load == nil {
		return nil, errors.New("no load function configured")
	}
	handle, err = l.load(ctx, path)
	if err == nil && handle == nil {
		err = errors.New("load returned no model")
	}
	return handle, err
}
