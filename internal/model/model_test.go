package model

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/errors"
)

func TestStaticClassifier(t *testing.T) {
	c := NewStaticClassifier(4, 0.1, 0.7, 0.05, 0.15)

	out, err := c.Predict(context.Background(), make([]float32, 4))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.7, 0.05, 0.15}, out)

	out[0] = 9
	again, _ := c.Predict(context.Background(), make([]float32, 4))
	assert.Equal(t, float32(0.1), again[0], "output is a copy")
}

func TestStaticClassifierShapeMismatch(t *testing.T) {
	c := Uniform(512, 4)

	_, err := c.Predict(context.Background(), make([]float32, 100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))
	assert.True(t, errors.IsFatal(err))
}

func TestStaticClassifierCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Uniform(2, 2).Predict(ctx, make([]float32, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetadataSizes(t *testing.T) {
	m := Metadata{InputShape: []int64{1, 512}, OutputShape: []int64{1, 4}}
	assert.Equal(t, 512, m.InputSize())
	assert.Equal(t, 4, m.OutputSize())
	assert.Equal(t, 0, Metadata{}.InputSize())
}

func TestReadMetadata(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"input_shape":[1,512],"output_shape":[1,4],"classes":["e","n","p","r"]}`), 0o644))
	m, err := ReadMetadata(good, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "n", "p", "r"}, m.Classes)

	wrongInput := filepath.Join(dir, "input.json")
	require.NoError(t, os.WriteFile(wrongInput, []byte(`{"input_shape":[1,256],"output_shape":[1,4]}`), 0o644))
	_, err = ReadMetadata(wrongInput, cfg)
	assert.True(t, errors.Is(err, errors.ErrModelLoad))

	wrongOutput := filepath.Join(dir, "output.json")
	require.NoError(t, os.WriteFile(wrongOutput, []byte(`{"input_shape":[1,512],"output_shape":[1,3]}`), 0o644))
	_, err = ReadMetadata(wrongOutput, cfg)
	assert.True(t, errors.Is(err, errors.ErrModelLoad))

	_, err = ReadMetadata(filepath.Join(dir, "missing.json"), cfg)
	assert.True(t, errors.Is(err, errors.ErrModelLoad))
	assert.True(t, errors.IsFatal(err))
}

func TestLoaderSuccess(t *testing.T) {
	c := Uniform(4, 2)
	l := NewLoader("stub", func(context.Context) (Classifier, error) { return c, nil })
	assert.Equal(t, StateLoading, l.State())

	notified := make(chan Classifier, 1)
	l.OnReady(func(got Classifier) { notified <- got })

	l.Start(context.Background())
	got, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, StateReady, l.State())

	select {
	case n := <-notified:
		assert.Same(t, c, n)
	case <-time.After(time.Second):
		t.Fatal("OnReady listener not called")
	}
}

func TestLoaderFailureAndReload(t *testing.T) {
	var attempts atomic.Int32
	c := Uniform(4, 2)
	l := NewLoader("flaky", func(context.Context) (Classifier, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("model.onnx: no such file")
		}
		return c, nil
	})

	l.Start(context.Background())
	_, err := l.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrModelLoad))
	assert.Equal(t, StateFailed, l.State())
	assert.Equal(t, int32(1), attempts.Load(), "no automatic retry")

	l.Reload(context.Background())
	got, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestLoaderWaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	l := NewLoader("slow", func(context.Context) (Classifier, error) {
		<-block
		return Uniform(1, 1), nil
	})
	l.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c, state, _ := l.Current()
	assert.Nil(t, c)
	assert.Equal(t, StateLoading, state)
}

func TestReadyLoader(t *testing.T) {
	c := Uniform(4, 2)
	l := Ready("stub", c)
	l.Start(context.Background())

	got, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, "stub", l.Name())
}

// closingClassifier fails like a native session once closed.
type closingClassifier struct {
	closed atomic.Bool
}

func (c *closingClassifier) Predict(context.Context, []float32) ([]float32, error) {
	if c.closed.Load() {
		return nil, errors.Wrap(errors.ErrModelNotReady, "classifier closed")
	}
	return []float32{1}, nil
}

func (c *closingClassifier) Close() {
	c.closed.Store(true)
}

func TestReloadWaitsForInFlightPredictions(t *testing.T) {
	old := &closingClassifier{}
	next := &closingClassifier{}
	var attempts atomic.Int32
	l := NewLoader("swap", func(context.Context) (Classifier, error) {
		if attempts.Add(1) == 1 {
			return old, nil
		}
		return next, nil
	})
	l.Start(context.Background())
	_, err := l.Wait(context.Background())
	require.NoError(t, err)

	c, release, state, err := l.Acquire()
	require.NoError(t, err)
	require.Equal(t, StateReady, state)
	assert.Same(t, old, c)

	l.Reload(context.Background())
	got, err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, next, got)

	assert.Never(t, old.closed.Load, 50*time.Millisecond, 5*time.Millisecond,
		"closed while a prediction still held it")
	_, err = c.Predict(context.Background(), []float32{0})
	require.NoError(t, err)

	release()
	release()
	assert.Eventually(t, old.closed.Load, time.Second, 5*time.Millisecond)
	assert.False(t, next.closed.Load())
}

func TestAcquireWithoutModel(t *testing.T) {
	l := NewLoader("slow", func(ctx context.Context) (Classifier, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	c, release, state, err := l.Acquire()
	assert.Nil(t, c)
	assert.NoError(t, err)
	assert.Equal(t, StateLoading, state)
	release()
}

func TestCloseWaitsForRelease(t *testing.T) {
	c := &closingClassifier{}
	l := Ready("stub", c)

	_, release, _, err := l.Acquire()
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		l.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a prediction held the classifier")
	case <-time.After(30 * time.Millisecond):
	}
	release()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after release")
	}
	assert.True(t, c.closed.Load())
}
