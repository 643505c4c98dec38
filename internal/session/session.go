package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Brownie44l1/eeg-api/internal/canvas"
	"github.com/Brownie44l1/eeg-api/internal/errors"
	"github.com/Brownie44l1/eeg-api/internal/logger"
	"github.com/Brownie44l1/eeg-api/internal/model"
	"github.com/Brownie44l1/eeg-api/internal/rank"
	"github.com/Brownie44l1/eeg-api/internal/signal"
)

type Status string

const (
	// StatusEmpty means no signal has been imported or drawn yet
	StatusEmpty Status = "empty"
	// StatusPending means predictions for the current buffer are not in yet
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	// StatusFailed is terminal: inference failed and the session must be replaced
	StatusFailed Status = "failed"
)

type EventType string

const (
	PointerDown  EventType = "pointer_down"
	PointerMove  EventType = "pointer_move"
	PointerUp    EventType = "pointer_up"
	PointerLeave EventType = "pointer_leave"
	TouchStart   EventType = "touch_start"
	TouchMove    EventType = "touch_move"
	TouchEnd     EventType = "touch_end"
	Resize       EventType = "resize"
)

// Event is one input event from the canvas.
type Event struct {
	Type     EventType
	Pointer  canvas.Pointer
	Buttons  int
	Touch    canvas.Touch
	Rect     canvas.Rect
	Viewport canvas.Viewport
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID         string `json:"id"`
	Generation uint64 `json:"generation"`
	Status     Status `json:"status"`
	// Values is nil until a signal exists
	Values      []float64           `json:"values"`
	Predictions []rank.Prediction   `json:"predictions"`
	Labels      []string            `json:"labels"`
	Stroke      *canvas.StrokePoint `json:"stroke"`
	Viewport    canvas.Viewport     `json:"viewport"`
	ModelState  model.State         `json:"model_state"`
	Error       string              `json:"error,omitempty"`
	Hints       []string            `json:"hints,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Session owns one sample buffer and keeps its predictions current.
//
// Every buffer change bumps the generation and starts a new inference over a
// copy of the buffer, cancelling the previous one. A completion is applied
// only if no newer inference has been started since, so a slow stale result
// can never replace a fresher one.
type Session struct {
	id       string
	pipeline *Pipeline
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	buffer      *signal.Buffer
	editor      *canvas.Editor
	generation  uint64
	seq         uint64
	inflight    context.CancelFunc
	status      Status
	predictions []rank.Prediction
	err         error
	updatedAt   time.Time
	lastSeen    time.Time
	subscribers map[chan Snapshot]struct{}
	closed      bool
}

func newSession(parent context.Context, p *Pipeline) *Session {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.New().String()
	cfg := p.Config()
	return &Session{
		id:       id,
		pipeline: p,
		logger:   logger.ComponentLogger("session").With(logger.FieldSessionID, id),
		ctx:      ctx,
		cancel:   cancel,
		editor: canvas.NewEditor(cfg.Signal, canvas.Viewport{
			Width:  float64(cfg.Render.Width),
			Height: float64(cfg.Render.Height),
		}),
		status:      StatusEmpty,
		updatedAt:   time.Now(),
		lastSeen:    time.Now(),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Draw applies one canvas event. It reports whether the buffer changed.
func (s *Session) Draw(ev Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = time.Now()
	if err := s.usable(); err != nil {
		return false, err
	}

	var next *signal.Buffer
	changed := false
	switch ev.Type {
	case PointerDown:
		next, changed = s.editor.PointerDown(s.buffer, ev.Pointer)
	case PointerMove:
		next, changed = s.editor.PointerMove(s.buffer, ev.Pointer, ev.Buttons)
	case PointerUp:
		s.editor.PointerUp()
	case PointerLeave:
		s.editor.PointerLeave()
	case TouchStart:
		next, changed = s.editor.TouchStart(s.buffer, ev.Touch, ev.Rect)
	case TouchMove:
		next, changed = s.editor.TouchMove(s.buffer, ev.Touch, ev.Rect)
	case TouchEnd:
		s.editor.TouchEnd()
	case Resize:
		s.editor.Resize(ev.Viewport)
		s.notify()
		return false, nil
	default:
		return false, errors.Wrapf(errors.ErrInvalidRequest, "unknown event type %q", ev.Type)
	}

	if changed {
		s.replace(next)
	}
	return changed, nil
}

// Import replaces the buffer with the normalized window of a signal file.
func (s *Session) Import(text string) error {
	values, err := s.pipeline.Ingestor().Load(text)
	if err != nil {
		return err
	}
	return s.SetValues(values)
}

// SetValues replaces the buffer with values already in unit range.
func (s *Session) SetValues(values []float64) error {
	buf, err := signal.FromValues(values, s.pipeline.Config().Signal.Size)
	if err != nil {
		return errors.Mark(err, errors.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	if err := s.usable(); err != nil {
		return err
	}
	s.replace(buf)
	return nil
}

// Buffer returns the current buffer and its generation. The buffer is never
// mutated after being installed, so callers may read it without locking.
func (s *Session) Buffer() (*signal.Buffer, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.buffer, s.generation
}

func (s *Session) Viewport() canvas.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Viewport()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.snapshot()
}

// idleSince reports when the session was last used. Sessions with an open
// subscription are never idle.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.subscribers) > 0 {
		return time.Time{}, false
	}
	return s.lastSeen, true
}

// Subscribe returns a channel that receives the latest snapshot after every
// change. Slow readers only see the most recent one. The channel is closed
// when the session closes or the returned cancel func is called.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshot()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
			s.lastSeen = time.Now()
		})
	}
}

// Retrigger reruns inference over the current buffer, e.g. after the model
// finished loading.
func (s *Session) Retrigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.status == StatusFailed || s.buffer == nil {
		s.notify()
		return
	}
	s.status = StatusPending
	s.dispatch()
	s.notify()
}

// Close cancels pending inference and closes all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Wait blocks until no inference is in flight. Used by tests and shutdown.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) usable() error {
	if s.closed {
		return errors.Wrap(errors.ErrSessionNotFound, "session closed")
	}
	if s.status == StatusFailed {
		return errors.WithHint(errors.Wrap(errors.ErrSessionFailed, s.err.Error()), "reload to start a new session")
	}
	return nil
}

// replace installs buf as the new buffer. Callers hold s.mu.
func (s *Session) replace(buf *signal.Buffer) {
	s.buffer = buf
	s.generation++
	s.status = StatusPending
	s.updatedAt = time.Now()
	s.dispatch()
	s.notify()
}

// dispatch cancels any in-flight inference and starts one for the current
// buffer. Without a loaded model the session stays pending until Retrigger.
// Every call supersedes earlier inferences, even when none is started.
// Callers hold s.mu.
func (s *Session) dispatch() {
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
	s.seq++

	c, release, err := s.pipeline.classifier()
	if err != nil {
		release()
		return
	}

	seq := s.seq
	gen := s.generation
	ctx, cancel := context.WithCancel(s.ctx)
	s.inflight = cancel
	input := s.buffer.Float32()

	s.wg.Add(1)
	go s.infer(ctx, cancel, c, release, seq, gen, input)
}

func (s *Session) infer(ctx context.Context, cancel context.CancelFunc, c model.Classifier, release func(), seq, gen uint64, input []float32) {
	defer s.wg.Done()
	defer cancel()

	start := time.Now()
	preds, err := s.pipeline.predict(ctx, c, input)
	release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || seq != s.seq || ctx.Err() != nil {
		s.logger.Debugw("Discarding stale inference",
			logger.FieldGeneration, gen,
			"current_generation", s.generation,
		)
		return
	}
	s.inflight = nil

	if err != nil {
		if errors.Is(err, errors.ErrModelNotReady) {
			// stays pending; the next model load retriggers
			return
		}
		s.status = StatusFailed
		s.err = err
		s.updatedAt = time.Now()
		s.logger.Errorw("Inference failed",
			logger.FieldGeneration, gen,
			logger.FieldError, err.Error(),
		)
		s.notify()
		return
	}

	s.predictions = preds
	s.status = StatusReady
	s.updatedAt = time.Now()
	s.logger.Debugw("Inference complete",
		logger.FieldGeneration, gen,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
		logger.FieldClass, preds[0].Label,
	)
	s.notify()
}

// notify pushes the current snapshot to every subscriber, replacing any
// snapshot they have not read yet. Callers hold s.mu.
func (s *Session) notify() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshot()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Callers hold s.mu.
func (s *Session) snapshot() Snapshot {
	_, modelState, modelErr := s.pipeline.Loader().Current()

	snap := Snapshot{
		ID:         s.id,
		Generation: s.generation,
		Status:     s.status,
		Labels:     s.pipeline.ranker.Labels(),
		Stroke:     s.editor.Stroke(),
		Viewport:   s.editor.Viewport(),
		ModelState: modelState,
		UpdatedAt:  s.updatedAt,
	}
	if s.buffer != nil {
		snap.Values = s.buffer.Values()
	}
	if s.predictions != nil {
		snap.Predictions = append([]rank.Prediction(nil), s.predictions...)
	}

	err := s.err
	if err == nil && modelState == model.StateFailed {
		err = modelErr
	}
	if err != nil {
		snap.Error = err.Error()
		snap.Hints = errors.GetAllHints(err)
	}
	return snap
}
