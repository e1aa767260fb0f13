package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lesson-quiz-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	LoadLessonQuiz(ctx context.Context, lessonID string) (domain.Quiz, error)
}

// QuizRepository caches quizzes with TTL to avoid repeated loader hits.
// Lessons are indexed to the id of their quiz.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu      sync.RWMutex
	rnd     *rand.Rand
	quizzes map[string]cachedQuiz
	lessons map[string]cachedLesson
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

type cachedLesson struct {
	quizID    string
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return NewQuizRepositoryWithClock(loader, ttl, time.Now)
}

// NewQuizRepositoryWithClock is test-only for controlling expiry.
func NewQuizRepositoryWithClock(loader QuizLoader, ttl time.Duration, clock func() time.Time) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   clock,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		quizzes: make(map[string]cachedQuiz),
		lessons: make(map[string]cachedLesson),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cachedQuiz(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do("quiz:"+quizID, func() (interface{}, error) {
		if quiz, ok := r.cachedQuiz(quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.store(quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) GetLessonQuiz(ctx context.Context, lessonID string) (domain.Quiz, error) {
	if quiz, ok := r.cachedLesson(lessonID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do("lesson:"+lessonID, func() (interface{}, error) {
		if quiz, ok := r.cachedLesson(lessonID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadLessonQuiz(ctx, lessonID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.store(quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cachedQuiz(quizID string) (domain.Quiz, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.quizzes[quizID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (r *QuizRepository) cachedLesson(lessonID string) (domain.Quiz, bool) {
	now := r.clock()
	r.mu.RLock()
	lesson, ok := r.lessons[lessonID]
	r.mu.RUnlock()
	if !ok || !lesson.expiresAt.After(now) {
		return domain.Quiz{}, false
	}
	return r.cachedQuiz(lesson.quizID)
}

func (r *QuizRepository) store(quiz domain.Quiz) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiresAt := r.clock().Add(r.ttlWithJitter())
	r.quizzes[quiz.ID] = cachedQuiz{quiz: quiz, expiresAt: expiresAt}
	if quiz.LessonID != "" {
		r.lessons[quiz.LessonID] = cachedLesson{quizID: quiz.ID, expiresAt: expiresAt}
	}
}

// ttlWithJitter must be called with mu held; rand.Rand is not safe for concurrent use.
func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader serves quizzes from a fixed set (demos, tests, the play command without a database).
type StaticQuizLoader struct {
	byID     map[string]domain.Quiz
	byLesson map[string]string
}

func NewStaticQuizLoader(quizzes ...domain.Quiz) *StaticQuizLoader {
	l := &StaticQuizLoader{
		byID:     make(map[string]domain.Quiz, len(quizzes)),
		byLesson: make(map[string]string, len(quizzes)),
	}
	for _, q := range quizzes {
		l.byID[q.ID] = q
		if q.LessonID != "" {
			l.byLesson[q.LessonID] = q.ID
		}
	}
	return l
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.byID[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (l *StaticQuizLoader) LoadLessonQuiz(ctx context.Context, lessonID string) (domain.Quiz, error) {
	quizID, ok := l.byLesson[lessonID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return l.LoadQuiz(ctx, quizID)
}
