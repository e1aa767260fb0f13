package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/event"
	"lesson-quiz-service/internal/scoring"
	"lesson-quiz-service/internal/session"
)

// QuizRepository loads quiz content, answer keys included (cache or backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	GetLessonQuiz(ctx context.Context, lessonID string) (domain.Quiz, error)
}

// AttemptRepository records scored attempts. List returns newest first.
type AttemptRepository interface {
	Append(ctx context.Context, attempt domain.Attempt) error
	List(ctx context.Context, quizID string) ([]domain.Attempt, error)
}

type Publisher interface {
	Publish(ctx context.Context, e event.Event)
}

// SessionRegistry tracks live session controllers so shutdown can release their timers.
type SessionRegistry interface {
	// Register adds c under id. A controller already registered under id is closed and replaced.
	Register(id string, c *session.Controller)
	// Remove forgets c if it is still registered under id; it does not close c.
	Remove(id string, c *session.Controller)
	CloseAll()
}

// QuizService answers quiz, attempt and scoring requests from the stores.
// It is the server-side session.Repository.
type QuizService struct {
	quizzes  QuizRepository
	attempts AttemptRepository
	events   Publisher
	now      func() time.Time
	newID    func() string
}

var _ session.Repository = (*QuizService)(nil)

func NewQuizService(quizzes QuizRepository, attempts AttemptRepository, events Publisher) *QuizService {
	return &QuizService{
		quizzes:  quizzes,
		attempts: attempts,
		events:   events,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// NewQuizServiceWithClock is test-only for deterministic ids and timestamps.
func NewQuizServiceWithClock(quizzes QuizRepository, attempts AttemptRepository, events Publisher, now func() time.Time, newID func() string) *QuizService {
	s := NewQuizService(quizzes, attempts, events)
	s.now = now
	s.newID = newID
	return s
}

// FetchQuiz returns the quiz attached to a lesson.
func (s *QuizService) FetchQuiz(ctx context.Context, lessonID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetLessonQuiz(ctx, lessonID)
	if err != nil {
		return domain.Quiz{}, domain.Unavailable(err)
	}
	return quiz, nil
}

// FetchAttempts lists previous attempts, newest first. Unknown quizzes have none.
func (s *QuizService) FetchAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	attempts, err := s.attempts.List(ctx, quizID)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	return attempts, nil
}

// SubmitAnswers grades answers against the stored answer key, records the attempt and returns its score.
func (s *QuizService) SubmitAnswers(ctx context.Context, quizID string, answers []domain.SubmittedAnswer) (int, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return 0, domain.Unavailable(err)
	}

	result := scoring.Grade(quiz, answers)
	attempt := domain.Attempt{
		ID:        s.newID(),
		QuizID:    quiz.ID,
		Score:     result.Score,
		CreatedAt: s.now().UTC(),
	}
	if err := s.attempts.Append(ctx, attempt); err != nil {
		return 0, domain.Unavailable(err)
	}

	slog.InfoContext(ctx, "app: attempt recorded",
		"quiz", quiz.ID,
		"attempt", attempt.ID,
		"score", result.Score,
		"correct", result.Correct,
		"total", result.Total,
	)
	if s.events != nil {
		s.events.Publish(ctx, domain.EventAttemptRecorded{
			Attempt: attempt,
			Correct: result.Correct,
			Total:   result.Total,
		})
	}
	return result.Score, nil
}
