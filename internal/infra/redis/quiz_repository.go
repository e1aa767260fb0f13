package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"lesson-quiz-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	LoadLessonQuiz(ctx context.Context, lessonID string) (domain.Quiz, error)
}

// QuizRepository caches whole quizzes as JSON in Redis and falls back to a loader on cache miss.
// Quizzes are stored as:   SET quiz:{quizID} {json}
// Lessons are indexed as:  SET lesson:{lessonID}:quiz {quizID}
// Redis failures degrade to loader reads.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizKey(quizID)); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizKey(quizID), func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if quiz, ok := r.cached(ctx, quizKey(quizID)); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.store(ctx, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) GetLessonQuiz(ctx context.Context, lessonID string) (domain.Quiz, error) {
	if quiz, ok := r.cachedLesson(ctx, lessonID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(lessonKey(lessonID), func() (interface{}, error) {
		if quiz, ok := r.cachedLesson(ctx, lessonID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadLessonQuiz(ctx, lessonID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.store(ctx, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cachedLesson(ctx context.Context, lessonID string) (domain.Quiz, bool) {
	quizID, err := r.client.Get(ctx, lessonKey(lessonID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "redis: read lesson index failed", "lesson", lessonID, "error", err)
		}
		return domain.Quiz{}, false
	}
	return r.cached(ctx, quizKey(quizID))
}

func (r *QuizRepository) cached(ctx context.Context, key string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "redis: read quiz failed", "key", key, "error", err)
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		slog.WarnContext(ctx, "redis: corrupt quiz entry", "key", key, "error", err)
		return domain.Quiz{}, false
	}
	return quiz, true
}

// store is best effort; the quiz is served from the loader either way.
func (r *QuizRepository) store(ctx context.Context, quiz domain.Quiz) {
	raw, err := json.Marshal(quiz)
	if err != nil {
		slog.WarnContext(ctx, "redis: encode quiz failed", "quiz", quiz.ID, "error", err)
		return
	}

	ttl := r.ttlWithJitter()
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, quizKey(quiz.ID), raw, ttl)
		if quiz.LessonID != "" {
			pipe.Set(ctx, lessonKey(quiz.LessonID), quiz.ID, ttl)
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "redis: cache quiz failed", "quiz", quiz.ID, "error", err)
	}
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func quizKey(quizID string) string {
	return "quiz:" + quizID
}

func lessonKey(lessonID string) string {
	return "lesson:" + lessonID + ":quiz"
}
