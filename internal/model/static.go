package model

import (
	"context"

	"github.com/Brownie44l1/eeg-api/internal/errors"
)

// StaticClassifier returns the same probabilities for every input of the
// expected size. It backs --stub-model and tests.
type StaticClassifier struct {
	InputSize     int
	Probabilities []float32
}

func NewStaticClassifier(inputSize int, probabilities ...float32) *StaticClassifier {
	return &StaticClassifier{InputSize: inputSize, Probabilities: probabilities}
}

// Uniform returns a static classifier assigning every class the same probability.
func Uniform(inputSize, classes int) *StaticClassifier {
	probs := make([]float32, classes)
	for i := range probs {
		probs[i] = 1 / float32(classes)
	}
	return NewStaticClassifier(inputSize, probs...)
}

func (s *StaticClassifier) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input) != s.InputSize {
		return nil, errors.Mark(
			errors.Wrapf(errors.ErrShapeMismatch, "expected %d values, got %d", s.InputSize, len(input)),
			errors.ErrInference)
	}
	out := make([]float32, len(s.Probabilities))
	copy(out, s.Probabilities)
	return out, nil
}
