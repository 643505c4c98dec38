package model

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/errors"
)

// OnnxClassifier runs a pretrained model through onnxruntime. Input and output
// tensors are allocated once; Predict calls are serialised.
type OnnxClassifier struct {
	Metadata Metadata

	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// ReadMetadata loads and checks the model metadata against the configured
// window size and label table.
func ReadMetadata(path string, cfg *config.Config) (Metadata, error) {
	var metadata Metadata

	metaFile, err := os.ReadFile(path)
	if err != nil {
		return metadata, errors.Mark(errors.Wrap(err, "failed to read metadata"), errors.ErrModelLoad)
	}
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return metadata, errors.Mark(errors.Wrap(err, "failed to parse metadata"), errors.ErrModelLoad)
	}

	if got := metadata.InputSize(); got != cfg.Signal.Size {
		return metadata, errors.Wrapf(errors.ErrModelLoad,
			"model takes %d input values, window size is %d", got, cfg.Signal.Size)
	}
	if got := metadata.OutputSize(); got != len(cfg.Labels) {
		return metadata, errors.Wrapf(errors.ErrModelLoad,
			"model produces %d outputs, label table has %d", got, len(cfg.Labels))
	}
	return metadata, nil
}

func NewOnnxClassifier(cfg *config.Config) (*OnnxClassifier, error) {
	metadata, err := ReadMetadata(cfg.Model.MetadataPath, cfg)
	if err != nil {
		return nil, err
	}

	if !ort.IsInitialized() {
		if cfg.Model.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.Model.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to initialize ONNX environment"), errors.ErrModelLoad)
		}
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to create input tensor"), errors.ErrModelLoad)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Mark(errors.Wrap(err, "failed to create output tensor"), errors.ErrModelLoad)
	}

	session, err := ort.NewAdvancedSession(cfg.Model.Path,
		[]string{cfg.Model.InputName}, []string{cfg.Model.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Mark(errors.Wrap(err, "failed to create ONNX session"), errors.ErrModelLoad)
	}

	return &OnnxClassifier{
		Metadata:     metadata,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (c *OnnxClassifier) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, errors.Wrap(errors.ErrModelNotReady, "classifier closed")
	}

	data := c.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, errors.Mark(
			errors.Wrapf(errors.ErrShapeMismatch, "expected %d values, got %d", len(data), len(input)),
			errors.ErrInference)
	}
	copy(data, input)

	if err := c.session.Run(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "inference failed"), errors.ErrInference)
	}

	out := make([]float32, len(c.outputTensor.GetData()))
	copy(out, c.outputTensor.GetData())
	return out, nil
}

// Close releases the session, the tensors and the ONNX environment.
func (c *OnnxClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
		c.inputTensor = nil
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
		c.outputTensor = nil
	}
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	ort.DestroyEnvironment()
}
