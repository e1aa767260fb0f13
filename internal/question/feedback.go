package question

import (
	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/scoring"
)

// OptionFeedback flags a single option after submission.
type OptionFeedback struct {
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
	Correct  bool   `json:"correct"`
}

// Feedback is the post-submission verdict for a question.
type Feedback struct {
	Correct bool             `json:"correct"`
	Options []OptionFeedback `json:"options,omitempty"`
}

// Evaluate builds feedback for q given what the player submitted.
// An option is correct when it belongs to the correct answer, whether selected or not.
// The question verdict uses the same comparison as scoring, so feedback never contradicts the score.
func Evaluate(q domain.Question, submitted domain.AnswerValue) Feedback {
	var fb Feedback
	if q.Answer == nil {
		for _, o := range q.Options {
			fb.Options = append(fb.Options, OptionFeedback{Text: o, Selected: submitted.Contains(o)})
		}
		return fb
	}

	correct := *q.Answer
	fb.Correct = scoring.Matches(submitted, correct)
	for _, o := range q.Options {
		fb.Options = append(fb.Options, OptionFeedback{
			Text:     o,
			Selected: submitted.Contains(o),
			Correct:  correct.Contains(o),
		})
	}
	return fb
}

// View is the render-ready state of one question.
type View struct {
	Number    int                `json:"number"`
	ID        string             `json:"id"`
	Prompt    string             `json:"prompt"`
	Options   []string           `json:"options"`
	Mode      Mode               `json:"mode"`
	Selection domain.AnswerValue `json:"selection"`
	Feedback  *Feedback          `json:"feedback,omitempty"`
}

// View renders the model's current state; the caller attaches Feedback after submission.
func (m *Model) View(number int) View {
	options := make([]string, len(m.question.Options))
	copy(options, m.question.Options)
	v := View{
		Number:    number,
		ID:        m.question.ID,
		Prompt:    m.question.Prompt,
		Options:   options,
		Mode:      m.mode,
		Selection: m.value,
	}
	return v
}
