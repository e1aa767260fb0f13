package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lesson-quiz-service/internal/domain"
)

// AttemptStore keeps attempts as a capped list per quiz, newest at the head:
// LPUSH quiz:{quizID}:attempts {json}
type AttemptStore struct {
	client *redis.Client
	limit  int64
}

// NewAttemptStore keeps at most limit attempts per quiz; limit <= 0 keeps everything.
func NewAttemptStore(client *redis.Client, limit int) *AttemptStore {
	return &AttemptStore{client: client, limit: int64(limit)}
}

func (s *AttemptStore) Append(ctx context.Context, attempt domain.Attempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}

	key := attemptsKey(attempt.QuizID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		if s.limit > 0 {
			pipe.LTrim(ctx, key, 0, s.limit-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) List(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	items, err := s.client.LRange(ctx, attemptsKey(quizID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	attempts := make([]domain.Attempt, 0, len(items))
	for _, item := range items {
		var a domain.Attempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func attemptsKey(quizID string) string {
	return "quiz:" + quizID + ":attempts"
}
