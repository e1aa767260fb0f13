package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lesson-quiz-service/internal/domain"
)

// QuizLoader loads quiz JSONB from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	row := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID)
	return scanQuiz(row)
}

// LoadLessonQuiz returns the most recently updated quiz of a lesson.
func (l *QuizLoader) LoadLessonQuiz(ctx context.Context, lessonID string) (domain.Quiz, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT data FROM quizzes WHERE lesson_id=$1 ORDER BY updated_at DESC LIMIT 1`, lessonID)
	return scanQuiz(row)
}

// SaveQuiz inserts or replaces a quiz.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO quizzes (id, lesson_id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET lesson_id=EXCLUDED.lesson_id, data=EXCLUDED.data, updated_at=now()`,
		quiz.ID, quiz.LessonID, string(data))
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}
