package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/eeg-api/internal/errors"
	"github.com/Brownie44l1/eeg-api/internal/logger"
	"github.com/Brownie44l1/eeg-api/internal/model"
)

// Store is the in-memory registry of open sessions.
type Store struct {
	pipeline *Pipeline
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	sessions  map[string]*Session
	listeners []func(id string)
}

// NewStore returns an empty store. Sessions rerun inference whenever the
// pipeline's loader finishes loading a model.
func NewStore(p *Pipeline) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pipeline: p,
		logger:   logger.ComponentLogger("session.store"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	p.Loader().OnReady(func(model.Classifier) {
		s.RetriggerAll()
	})
	return s
}

func (s *Store) Pipeline() *Pipeline {
	return s.pipeline
}

func (s *Store) Create() *Session {
	sess := newSession(s.ctx, s.pipeline)

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	s.logger.Infow("Session created",
		logger.FieldSessionID, sess.ID(),
		logger.FieldCount, count,
	)
	return sess
}

func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "session %s", id)
	}
	return sess, nil
}

// OnRemove registers fn to be called with the id of every session removed
// by Delete or Sweep.
func (s *Store) OnRemove(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Delete closes and removes a session.
func (s *Store) Delete(id string) error {
	if !s.remove(id) {
		return errors.Wrapf(errors.ErrSessionNotFound, "session %s", id)
	}
	s.logger.Infow("Session closed", logger.FieldSessionID, id)
	return nil
}

func (s *Store) remove(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	if !ok {
		return false
	}
	sess.Close()
	for _, fn := range listeners {
		fn(id)
	}
	return true
}

// Sweep closes sessions without a subscriber that have not been used since
// now-ttl. It returns how many were removed.
func (s *Store) Sweep(now time.Time, ttl time.Duration) int {
	removed := 0
	for _, sess := range s.list() {
		last, idle := sess.idleSince()
		if !idle || now.Sub(last) < ttl {
			continue
		}
		if s.remove(sess.ID()) {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Infow("Idle sessions closed",
			logger.FieldCount, removed,
			"remaining", s.Len(),
		)
	}
	return removed
}

// StartReaper sweeps idle sessions in the background until the store closes.
// A ttl of zero keeps sessions until they are deleted.
func (s *Store) StartReaper(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case now := <-ticker.C:
				s.Sweep(now, ttl)
			}
		}
	}()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) list() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// RetriggerAll reruns inference in every session.
func (s *Store) RetriggerAll() {
	sessions := s.list()
	s.logger.Infow("Model ready, refreshing sessions", logger.FieldCount, len(sessions))
	for _, sess := range sessions {
		sess.Retrigger()
	}
}

// Close closes every session.
func (s *Store) Close() {
	s.cancel()

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}
