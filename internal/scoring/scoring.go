// Package scoring turns a set of submitted answers into a percentage score.
package scoring

import (
	"strings"

	"github.com/shopspring/decimal"

	"lesson-quiz-service/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of grading one submission.
type Result struct {
	Score   int
	Correct int
	Total   int
	// PerQuestion is keyed by question id; unanswered questions are false.
	PerQuestion map[string]bool
}

// Matches compares a submitted value with the correct one.
// Collections are compared as sorted sequences, single values case-insensitively after trimming.
// A shape mismatch is simply incorrect.
func Matches(submitted, correct domain.AnswerValue) bool {
	switch {
	case submitted.IsMulti() && correct.IsMulti():
		a, b := submitted.Sorted(), correct.Sorted()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	case !submitted.IsMulti() && !correct.IsMulti():
		return strings.EqualFold(strings.TrimSpace(submitted.Text()), strings.TrimSpace(correct.Text()))
	default:
		return false
	}
}

// Grade scores answers against the quiz's own answer key.
func Grade(quiz domain.Quiz, answers []domain.SubmittedAnswer) Result {
	return grade(quiz.Questions, answers, quiz.AnswerKey())
}

// Score returns round(correct / len(questions) * 100), rounding halves up.
// Every question counts towards the denominator, answered or not; zero questions score 0.
func Score(questions []domain.Question, answers []domain.SubmittedAnswer, key map[string]domain.AnswerValue) int {
	return grade(questions, answers, key).Score
}

func grade(questions []domain.Question, answers []domain.SubmittedAnswer, key map[string]domain.AnswerValue) Result {
	res := Result{
		Total:       len(questions),
		PerQuestion: make(map[string]bool, len(questions)),
	}

	// last write wins per question
	latest := make(map[string]domain.AnswerValue, len(answers))
	for _, a := range answers {
		latest[a.QuestionID] = a.Value
	}

	for _, q := range questions {
		submitted, answered := latest[q.ID]
		correct, hasKey := key[q.ID]
		ok := answered && hasKey && Matches(submitted, correct)
		res.PerQuestion[q.ID] = ok
		if ok {
			res.Correct++
		}
	}

	res.Score = percent(res.Correct, res.Total)
	return res
}

func percent(correct, total int) int {
	if total == 0 {
		return 0
	}
	// decimal.Round rounds half away from zero, which is half-up for non-negative values.
	p := decimal.NewFromInt(int64(correct)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(0)
	return int(p.IntPart())
}
