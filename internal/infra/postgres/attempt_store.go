package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"lesson-quiz-service/internal/domain"
)

// AttemptStore persists attempts in the attempts table.
type AttemptStore struct {
	pool  *pgxpool.Pool
	limit int
}

// NewAttemptStore lists at most limit attempts per quiz; limit <= 0 lists everything.
func NewAttemptStore(pool *pgxpool.Pool, limit int) *AttemptStore {
	return &AttemptStore{pool: pool, limit: limit}
}

func (s *AttemptStore) Append(ctx context.Context, attempt domain.Attempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attempts (id, quiz_id, score, created_at) VALUES ($1, $2, $3, $4)`,
		attempt.ID, attempt.QuizID, attempt.Score, attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) List(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	var limit interface{}
	if s.limit > 0 {
		limit = s.limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, quiz_id, score, created_at FROM attempts
		WHERE quiz_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, quizID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.Attempt{}
	for rows.Next() {
		var a domain.Attempt
		if err := rows.Scan(&a.ID, &a.QuizID, &a.Score, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}
