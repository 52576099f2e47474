package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/jnana/internal/adapters/repository"
	"github.com/okian/jnana/internal/domain/model"
)

// Session is the per-worker state kept between requests. Its mutex
// serializes next, submit and skip for one worker.
type Session struct {
	mu sync.Mutex

	WorkerID   string
	Current    *model.Assignment
	Candidates []string
	BuiltAt    time.Time
}

// candidatesFresh reports whether the memoized candidate queue can be reused.
func (s *Session) candidatesFresh(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && len(s.Candidates) > 0 && now.Sub(s.BuiltAt) < ttl
}

func (s *Session) dropCandidates() {
	s.Candidates = nil
	s.BuiltAt = time.Time{}
}

// session returns the worker's session, creating it after checking the
// worker is onboarded. Every call refreshes the idle timer.
func (s *Service) session(ctx context.Context, workerID string) (*Session, error) {
	if v, ok := s.sessions.Get(workerID); ok {
		sess := v.(*Session)
		s.sessions.SetDefault(workerID, sess)
		return sess, nil
	}

	if err := s.requireWorker(ctx, workerID); err != nil {
		return nil, err
	}

	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if v, ok := s.sessions.Get(workerID); ok {
		return v.(*Session), nil
	}
	sess := &Session{WorkerID: workerID}
	s.sessions.SetDefault(workerID, sess)
	return sess, nil
}

func (s *Service) requireWorker(ctx context.Context, workerID string) error {
	if workerID == "" {
		return ErrNotOnboarded
	}
	_, err := s.store.GetWorker(ctx, workerID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotOnboarded, workerID)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	return s.sessions.ItemCount()
}
