// Package session wires the sample buffer, the drawing editor and the model
// into the normalize, infer and rank pipeline, one session per open page.
package session

import (
	"context"
	"io"

	"github.com/Brownie44l1/eeg-api/internal/config"
	"github.com/Brownie44l1/eeg-api/internal/errors"
	"github.com/Brownie44l1/eeg-api/internal/model"
	"github.com/Brownie44l1/eeg-api/internal/rank"
	"github.com/Brownie44l1/eeg-api/internal/signal"
)

// Pipeline runs one-shot classifications outside any session.
type Pipeline struct {
	cfg      *config.Config
	loader   *model.Loader
	ranker   *rank.Ranker
	ingestor *signal.Ingestor
}

func NewPipeline(cfg *config.Config, loader *model.Loader, ranker *rank.Ranker) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		loader:   loader,
		ranker:   ranker,
		ingestor: signal.NewIngestor(cfg.Signal),
	}
}

func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

func (p *Pipeline) Loader() *model.Loader {
	return p.loader
}

func (p *Pipeline) Ingestor() *signal.Ingestor {
	return p.ingestor
}

// classifier acquires the loaded classifier or reports why there is none.
// The release func must be called after predicting.
func (p *Pipeline) classifier() (model.Classifier, func(), error) {
	c, release, state, err := p.loader.Acquire()
	switch state {
	case model.StateReady:
		return c, release, nil
	case model.StateFailed:
		return nil, release, err
	default:
		return nil, release, errors.ErrModelNotReady
	}
}

// Classify runs values, already in unit range, through the model and ranks the result.
func (p *Pipeline) Classify(ctx context.Context, values []float64) ([]rank.Prediction, error) {
	buf, err := signal.FromValues(values, p.cfg.Signal.Size)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidRequest)
	}
	c, release, err := p.classifier()
	defer release()
	if err != nil {
		return nil, err
	}
	return p.predict(ctx, c, buf.Float32())
}

// ClassifyFile ingests and normalizes a signal file, then classifies it.
func (p *Pipeline) ClassifyFile(ctx context.Context, r io.Reader) ([]float64, []rank.Prediction, error) {
	values, err := p.ingestor.Read(r)
	if err != nil {
		return nil, nil, err
	}
	preds, err := p.Classify(ctx, values)
	if err != nil {
		return nil, nil, err
	}
	return values, preds, nil
}

func (p *Pipeline) predict(ctx context.Context, c model.Classifier, input []float32) ([]rank.Prediction, error) {
	probs, err := c.Predict(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// the model was swapped out underneath us
		if errors.Is(err, errors.ErrModelNotReady) {
			return nil, err
		}
		return nil, errors.Fatal(err)
	}
	return p.ranker.Rank(probs)
}
