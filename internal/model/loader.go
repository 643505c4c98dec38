package model

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/eeg-api/internal/errors"
	"github.com/Brownie44l1/eeg-api/internal/logger"
)

// OpenFunc builds a classifier. It runs on the loader's goroutine.
type OpenFunc func(ctx context.Context) (Classifier, error)

// Loader loads the model once in the background so the server can accept
// requests while it is still loading. A failed load stays failed until
// Reload is called; there is no automatic retry.
type Loader struct {
	open   OpenFunc
	name   string
	logger *zap.SugaredLogger

	mu         sync.Mutex
	state      State
	classifier Classifier
	lease      *lease
	err        error
	done       chan struct{}
	started    bool
	listeners  []func(Classifier)
}

// lease guards one loaded classifier. Predict calls hold the read lock, so
// closing the classifier waits for them to finish.
type lease struct {
	mu sync.RWMutex
	c  Classifier
}

func newLease(c Classifier) *lease {
	return &lease{c: c}
}

// retire closes the classifier once no caller holds it.
func (l *lease) retire() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if closer, ok := l.c.(interface{ Close() }); ok {
		closer.Close()
	}
}

// NewLoader returns a loader in the loading state. Call Start to begin.
func NewLoader(name string, open OpenFunc) *Loader {
	return &Loader{
		open:   open,
		name:   name,
		logger: logger.ComponentLogger("model.loader"),
		state:  StateLoading,
		done:   make(chan struct{}),
	}
}

// Ready returns a loader that already holds c.
func Ready(name string, c Classifier) *Loader {
	l := NewLoader(name, func(context.Context) (Classifier, error) { return c, nil })
	l.state = StateReady
	l.classifier = c
	l.lease = newLease(c)
	l.started = true
	close(l.done)
	return l
}

// OnReady registers fn to be called after every successful load.
func (l *Loader) OnReady(fn func(Classifier)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Start loads the model in a new goroutine. Only the first call has an effect.
func (l *Loader) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	done := l.done
	l.mu.Unlock()
	go l.load(ctx, done)
}

func (l *Loader) load(ctx context.Context, done chan struct{}) {
	start := time.Now()
	l.logger.Infow("Loading model", logger.FieldModel, l.name)

	c, err := l.open(ctx)
	if err != nil && !errors.Is(err, errors.ErrModelLoad) {
		err = errors.Mark(err, errors.ErrModelLoad)
	}

	l.mu.Lock()
	if err != nil {
		l.state = StateFailed
		l.err = err
		l.classifier = nil
		l.lease = nil
	} else {
		l.state = StateReady
		l.err = nil
		l.classifier = c
		l.lease = newLease(c)
	}
	close(done)
	listeners := append([]func(Classifier){}, l.listeners...)
	l.mu.Unlock()

	if err != nil {
		l.logger.Errorw("Model load failed",
			logger.FieldModel, l.name,
			logger.FieldError, err.Error(),
		)
		return
	}

	l.logger.Infow("Model loaded",
		logger.FieldModel, l.name,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	for _, fn := range listeners {
		fn(c)
	}
}

// Current returns the classifier if loaded, along with the state and load error.
func (l *Loader) Current() (Classifier, State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.classifier, l.state, l.err
}

// Acquire returns the classifier with a release func that must be called
// once the caller is done predicting. The classifier is not closed by Reload
// or Close until every holder has released it. Without a ready classifier
// release is a no-op.
func (l *Loader) Acquire() (Classifier, func(), State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateReady || l.lease == nil {
		return nil, func() {}, l.state, l.err
	}
	ls := l.lease
	ls.mu.RLock()
	var once sync.Once
	return ls.c, func() { once.Do(ls.mu.RUnlock) }, l.state, nil
}

func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the load failure, if any.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loader) Name() string {
	return l.name
}

// Wait blocks until the current load attempt finishes or ctx is done.
func (l *Loader) Wait(ctx context.Context) (Classifier, error) {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c, _, err := l.Current()
	return c, err
}

// Reload discards the current classifier and loads again. It is the manual
// recovery action after a load failure. A load already in progress is left alone.
// The old classifier is closed in the background once in-flight predictions
// have released it.
func (l *Loader) Reload(ctx context.Context) {
	l.mu.Lock()
	if l.state == StateLoading {
		l.mu.Unlock()
		return
	}
	old := l.lease
	l.state = StateLoading
	l.classifier = nil
	l.lease = nil
	l.err = nil
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go old.retire()
	go l.load(ctx, done)
}

// Close waits for in-flight predictions, then releases the classifier if it
// holds native resources.
func (l *Loader) Close() {
	l.mu.Lock()
	old := l.lease
	l.classifier = nil
	l.lease = nil
	l.mu.Unlock()

	old.retire()
}
