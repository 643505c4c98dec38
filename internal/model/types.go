package model

import (
	"context"
)

// Metadata describes the exported model, read from model_metadata.json
// alongside the .onnx file.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
}

// InputSize is the number of features in one input row.
func (m Metadata) InputSize() int {
	return flattened(m.InputShape)
}

// OutputSize is the number of class probabilities in one output row.
func (m Metadata) OutputSize() int {
	return flattened(m.OutputShape)
}

func flattened(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// Classifier runs one forward pass over a row of features and returns the
// class probabilities, index aligned with the label table.
type Classifier interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
}

// State is the lifecycle of the loaded model.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)
