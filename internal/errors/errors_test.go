package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrapf(ErrShortWindow, "got %d lines", 12)
	require.Error(t, err)
	assert.True(t, Is(err, ErrShortWindow))
	assert.Contains(t, err.Error(), "got 12 lines")
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(Wrap(ErrModelLoad, "open model.onnx")))
	assert.True(t, IsFatal(Wrap(ErrInference, "run")))
	assert.False(t, IsFatal(ErrShortWindow))
	assert.False(t, IsFatal(nil))
}

func TestIsInputError(t *testing.T) {
	assert.True(t, IsInputError(Wrap(ErrMalformedSample, "line 800")))
	assert.True(t, IsInputError(ErrOutOfRange))
	assert.False(t, IsInputError(ErrModelNotReady))
}

func TestFatal(t *testing.T) {
	assert.Nil(t, Fatal(nil))

	err := Fatal(Wrap(ErrShapeMismatch, "expected 512 values"))
	assert.True(t, Is(err, ErrInference))
	assert.True(t, Is(err, ErrShapeMismatch))
	assert.Contains(t, err.Error(), "expected 512 values")
	assert.NotEmpty(t, FlattenHints(err))

	load := Wrap(ErrModelLoad, "missing file")
	assert.Equal(t, load, Fatal(load))
}
