package cli

import "lesson-quiz-service/internal/domain"

// sampleQuizzes is served when no database is configured and seeded by `migrate --seed`.
func sampleQuizzes() []domain.Quiz {
	answer := func(v domain.AnswerValue) *domain.AnswerValue { return &v }
	return []domain.Quiz{
		{
			ID:       "quiz-go-basics",
			LessonID: "lesson-go-basics",
			Questions: []domain.Question{
				{
					ID:      "q1",
					Prompt:  "Which keyword starts a goroutine?",
					Options: []string{"go", "async", "spawn"},
					Answer:  answer(domain.Text("go")),
				},
				{
					ID:      "q2",
					Prompt:  "Which of these are reference types? Select all that apply.",
					Options: []string{"map", "slice", "array", "struct"},
					Answer:  answer(domain.Set("map", "slice")),
				},
				{
					ID:     "q3",
					Prompt: "What does the zero value of a pointer equal?",
					Answer: answer(domain.Text("nil")),
				},
			},
		},
		{
			ID:       "quiz-http",
			LessonID: "lesson-http",
			Questions: []domain.Question{
				{
					ID:      "q1",
					Prompt:  "Which status code means Not Found?",
					Options: []string{"200", "404", "500"},
					Answer:  answer(domain.Text("404")),
				},
				{
					ID:      "q2",
					Prompt:  "Is GET idempotent?",
					Options: []string{"yes", "no"},
					Answer:  answer(domain.Text("yes")),
				},
			},
		},
	}
}
