package domain

import "time"

// Question is a single quiz item. An empty Options slice means free-text entry.
// Answer holds the correct value and never leaves the server in a player view.
type Question struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Options []string     `json:"options"`
	Answer  *AnswerValue `json:"answer,omitempty"`
}

// Quiz is an ordered list of questions attached to a lesson.
// Question order defines numbering, starting at 1.
type Quiz struct {
	ID        string     `json:"id"`
	LessonID  string     `json:"lessonId"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Validate checks that question ids are unique.
func (q Quiz) Validate() error {
	seen := make(map[string]struct{}, len(q.Questions))
	for _, question := range q.Questions {
		if _, ok := seen[question.ID]; ok {
			return ErrDuplicateQuestion
		}
		seen[question.ID] = struct{}{}
	}
	return nil
}

// AnswerKey returns question id -> correct value for every question that has one.
func (q Quiz) AnswerKey() map[string]AnswerValue {
	key := make(map[string]AnswerValue, len(q.Questions))
	for _, question := range q.Questions {
		if question.Answer != nil {
			key[question.ID] = *question.Answer
		}
	}
	return key
}

// PlayerView returns a deep copy without correct answers.
func (q Quiz) PlayerView() Quiz {
	view := q
	view.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		options := make([]string, len(question.Options))
		copy(options, question.Options)
		view.Questions[i] = Question{
			ID:      question.ID,
			Prompt:  question.Prompt,
			Options: options,
		}
	}
	return view
}

// Attempt is the recorded outcome of one scored submission. Score is a percentage, 0-100.
type Attempt struct {
	ID        string    `json:"id"`
	QuizID    string    `json:"quizId"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
}
