package memory

import (
	"context"
	"sync"

	"lesson-quiz-service/internal/domain"
)

// AttemptStore keeps the most recent attempts per quiz in memory.
type AttemptStore struct {
	limit int

	mu       sync.RWMutex
	attempts map[string][]domain.Attempt
}

// NewAttemptStore keeps at most limit attempts per quiz; limit <= 0 keeps everything.
func NewAttemptStore(limit int) *AttemptStore {
	return &AttemptStore{
		limit:    limit,
		attempts: make(map[string][]domain.Attempt),
	}
}

func (s *AttemptStore) Append(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]domain.Attempt{attempt}, s.attempts[attempt.QuizID]...)
	if s.limit > 0 && len(list) > s.limit {
		list = list[:s.limit]
	}
	s.attempts[attempt.QuizID] = list
	return nil
}

// List returns a copy, newest first.
func (s *AttemptStore) List(_ context.Context, quizID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Attempt, len(s.attempts[quizID]))
	copy(out, s.attempts[quizID])
	return out, nil
}
