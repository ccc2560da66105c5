package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Brownie44l1/lesion-api/internal/model"
	"github.com/Brownie44l1/lesion-api/internal/model/modeltest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, events <-chan Event) ([]int, []Outcome) {
	t.Helper()
	var ticks []int
	var outcomes []Outcome
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return ticks, outcomes
			}
			switch ev.Kind {
			case KindProgress:
				require.Empty(t, outcomes, "progress after outcome")
				ticks = append(ticks, ev.Progress)
			case KindOutcome:
				outcomes = append(outcomes, ev.Outcome)
			}
		case <-timeout:
			t.Fatal("loader did not finish")
		}
	}
}

func fast(load LoadFunc, opts ...Option) *Loader {
	opts = append([]Option{WithInterval(0), WithLogger(zerolog.Nop())}, opts...)
	return New(load, opts...)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (o *recordingObserver) ObserveLoad(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.err = err
}

func TestLoader_Success(t *testing.T) {
	fake := modeltest.New("nv")
	obs := &recordingObserver{}
	l := fast(func(context.Context, string) (model.Handle, error) {
		return fake, nil
	}, WithObserver(obs))
	assert.Equal(t, StateIdle, l.State())

	events, err := l.Start(context.Background(), "assets/model.onnx")
	require.NoError(t, err)

	ticks, outcomes := collect(t, events)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].OK())
	assert.Same(t, fake, outcomes[0].Handle)
	assert.Empty(t, outcomes[0].Message())

	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, ticks)
	assert.Equal(t, StateSucceeded, l.State())
	assert.Equal(t, 1, obs.calls)
	assert.NoError(t, obs.err)
}

func TestLoader_TicksMonotonic(t *testing.T) {
	for _, step := range []int{1, 7, 25, 33, 100} {
		l := fast(func(context.Context, string) (model.Handle, error) {
			return modeltest.New("mel"), nil
		}, WithTicks(step))

		events, err := l.Start(context.Background(), "m")
		require.NoError(t, err)
		ticks, outcomes := collect(t, events)

		require.Len(t, outcomes, 1, "step=%d", step)
		require.NotEmpty(t, ticks)
		assert.Equal(t, 0, ticks[0])
		assert.Equal(t, 100, ticks[len(ticks)-1])
		for i, p := range ticks {
			assert.GreaterOrEqual(t, p, 0)
			assert.LessOrEqual(t, p, 100)
			if i > 0 {
				assert.GreaterOrEqual(t, p, ticks[i-1], "step=%d", step)
			}
		}
	}
}

func TestLoader_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets", "model.onnx")
	obs := &recordingObserver{}
	l := fast(func(_ context.Context, p string) (model.Handle, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
		return modeltest.New("nv"), nil
	}, WithObserver(obs))

	events, err := l.Start(context.Background(), path)
	require.NoError(t, err)
	_, outcomes := collect(t, events)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].OK())
	assert.Nil(t, outcomes[0].Handle)
	assert.True(t, errors.Is(outcomes[0].Err, os.ErrNotExist))
	assert.Contains(t, outcomes[0].Message(), "model.onnx")
	assert.Equal(t, StateFailed, l.State())
	assert.Error(t, obs.err)
}

func TestLoader_PanicBecomesFailure(t *testing.T) {
	l := fast(func(context.Context, string) (model.Handle, error) {
		panic("corrupt artifact")
	})

	events, err := l.Start(context.Background(), "m")
	require.NoError(t, err)
	_, outcomes := collect(t, events)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].OK())
	assert.Contains(t, outcomes[0].Message(), "corrupt artifact")
}

func TestLoader_NilHandleIsFailure(t *testing.T) {
	l := fast(func(context.Context, string) (model.Handle, error) {
		return nil, nil
	})

	events, err := l.Start(context.Background(), "m")
	require.NoError(t, err)
	_, outcomes := collect(t, events)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].OK())
	assert.Error(t, outcomes[0].Err)
}

func TestLoader_StartOnce(t *testing.T) {
	l := fast(func(context.Context, string) (model.Handle, error) {
		return modeltest.New("nv"), nil
	})

	events, err := l.Start(context.Background(), "m")
	require.NoError(t, err)

	_, err = l.Start(context.Background(), "m")
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	collect(t, events)
	_, err = l.Start(context.Background(), "m")
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestLoader_StartReturnsBeforeLoadCompletes(t *testing.T) {
	release := make(chan struct{})
	l := fast(func(context.Context, string) (model.Handle, error) {
		<-release
		return modeltest.New("nv"), nil
	})

	events, err := l.Start(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, StateLoading, l.State())

	close(release)
	_, outcomes := collect(t, events)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].OK())
}

func TestLoader_CancelDuringTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loaded := false
	l := New(func(context.Context, string) (model.Handle, error) {
		loaded = true
		return modeltest.New("nv"), nil
	}, WithInterval(time.Hour), WithLogger(zerolog.Nop()))

	events, err := l.Start(ctx, "m")
	require.NoError(t, err)
	cancel()

	ticks, outcomes := collect(t, events)
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
	assert.Equal(t, []int{0}, ticks)
	assert.False(t, loaded)
	assert.Equal(t, StateFailed, l.State())
}

func TestLoader_UnreadEventsDoNotBlockWorker(t *testing.T) {
	l := fast(func(context.Context, string) (model.Handle, error) {
		return modeltest.New("nv"), nil
	}, WithTicks(1))

	_, err := l.Start(context.Background(), "m")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return l.State() == StateSucceeded
	}, 5*time.Second, 5*time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "failed", StateFailed.String())
}
