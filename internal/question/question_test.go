package question_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/question"
)

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		question domain.Question
		want     question.Mode
	}{
		"no options is free text": {
			question: domain.Question{ID: "q", Prompt: "Select all that apply: name a planet"},
			want:     question.ModeFreeText,
		},
		"select all with three options is multi": {
			question: domain.Question{ID: "q", Prompt: "Which are planets? SELECT ALL THAT APPLY", Options: []string{"Venus", "Mars", "Moon"}},
			want:     question.ModeMulti,
		},
		"select all with two options stays single": {
			question: domain.Question{ID: "q", Prompt: "Select all that apply", Options: []string{"True", "False"}},
			want:     question.ModeSingle,
		},
		"many options without the phrase is single": {
			question: domain.Question{ID: "q", Prompt: "Pick one", Options: []string{"a", "b", "c", "d"}},
			want:     question.ModeSingle,
		},
		"true false is single": {
			question: domain.Question{ID: "q", Prompt: "The sun is a star", Options: []string{"True", "False"}},
			want:     question.ModeSingle,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, question.Classify(tt.question))
		})
	}
}

func TestModelFreeText(t *testing.T) {
	rec := &recorder{}
	m := question.New(domain.Question{ID: "q1", Prompt: "Capital of France?"}, rec.emit)

	require.NoError(t, m.Edit("Par"))
	require.NoError(t, m.Edit(""))

	require.Equal(t, []domain.AnswerValue{domain.Text("Par"), domain.Text("")}, rec.values)
	require.ErrorIs(t, m.Select("Paris"), domain.ErrModeMismatch)
	require.ErrorIs(t, m.Toggle("Paris"), domain.ErrModeMismatch)
}

func TestModelSingleSelect(t *testing.T) {
	rec := &recorder{}
	m := question.New(domain.Question{ID: "q1", Prompt: "2 + 2?", Options: []string{"3", "4", "5"}}, rec.emit)

	require.NoError(t, m.Select("3"))
	require.NoError(t, m.Select("4"))
	require.Equal(t, domain.Text("4"), m.Value())
	require.Len(t, rec.values, 2)

	require.ErrorIs(t, m.Select("6"), domain.ErrUnknownOption)
	require.ErrorIs(t, m.Edit("4"), domain.ErrModeMismatch)
	require.Equal(t, domain.Text("4"), m.Value())
}

func TestModelMultiSelectToggle(t *testing.T) {
	rec := &recorder{}
	m := question.New(domain.Question{
		ID:      "q1",
		Prompt:  "Which are planets? Select all that apply.",
		Options: []string{"Venus", "Mars", "Jupiter", "Moon"},
	}, rec.emit)

	require.NoError(t, m.Toggle("Venus"))
	require.NoError(t, m.Toggle("Mars"))
	require.NoError(t, m.Toggle("Venus"))

	require.Len(t, rec.values, 3)
	assert.ElementsMatch(t, []string{"Venus"}, rec.values[0].Items())
	assert.ElementsMatch(t, []string{"Venus", "Mars"}, rec.values[1].Items())
	assert.ElementsMatch(t, []string{"Mars"}, rec.values[2].Items())
	require.True(t, m.Value().IsMulti())

	require.ErrorIs(t, m.Select("Mars"), domain.ErrModeMismatch)
}

func TestModelResetsWhenQuestionChanges(t *testing.T) {
	rec := &recorder{}
	m := question.New(domain.Question{ID: "q1", Prompt: "2 + 2?", Options: []string{"3", "4"}}, rec.emit)
	require.NoError(t, m.Select("4"))

	// same id keeps the selection
	m.Load(domain.Question{ID: "q1", Prompt: "2 + 2?", Options: []string{"3", "4"}})
	require.Equal(t, domain.Text("4"), m.Value())

	m.Load(domain.Question{ID: "q2", Prompt: "Pick planets, select all that apply", Options: []string{"3", "4", "Mars"}})
	require.Equal(t, question.ModeMulti, m.Mode())
	require.True(t, m.Value().IsMulti())
	require.True(t, m.Value().IsEmpty())

	m.Load(domain.Question{ID: "q3", Prompt: "Name it"})
	require.Equal(t, domain.Text(""), m.Value())
	require.Len(t, rec.values, 1, "loading a question must not emit")

	require.NoError(t, m.Edit("Go"))
	m.Reset()
	require.Equal(t, domain.Text(""), m.Value())
	require.Len(t, rec.values, 2, "reset must not emit")
}

func TestModelSet(t *testing.T) {
	multi := question.New(domain.Question{ID: "q1", Prompt: "Select all that apply", Options: []string{"a", "b", "c"}}, nil)
	require.NoError(t, multi.Set(domain.Set("a", "c", "a")))
	assert.ElementsMatch(t, []string{"a", "c"}, multi.Value().Items())
	require.ErrorIs(t, multi.Set(domain.Text("a")), domain.ErrModeMismatch)
	require.ErrorIs(t, multi.Set(domain.Set("z")), domain.ErrUnknownOption)

	single := question.New(domain.Question{ID: "q2", Prompt: "Pick", Options: []string{"a", "b"}}, nil)
	require.NoError(t, single.Set(domain.Text("b")))
	require.NoError(t, single.Set(domain.Text("")))
	require.ErrorIs(t, single.Set(domain.Text("z")), domain.ErrUnknownOption)

	text := question.New(domain.Question{ID: "q3", Prompt: "Say"}, nil)
	require.NoError(t, text.Set(domain.Text("anything")))
	require.ErrorIs(t, text.Set(domain.Set("anything")), domain.ErrModeMismatch)
}

func TestEvaluate(t *testing.T) {
	correct := domain.Set("Mars", "Venus")
	q := domain.Question{
		ID:      "q1",
		Prompt:  "Select all that apply",
		Options: []string{"Venus", "Mars", "Moon"},
		Answer:  &correct,
	}

	fb := question.Evaluate(q, domain.Set("Venus", "Moon"))
	require.False(t, fb.Correct)
	require.Equal(t, []question.OptionFeedback{
		{Text: "Venus", Selected: true, Correct: true},
		{Text: "Mars", Selected: false, Correct: true},
		{Text: "Moon", Selected: true, Correct: false},
	}, fb.Options)

	fb = question.Evaluate(q, domain.Set("Venus", "Mars"))
	require.True(t, fb.Correct)

	text := domain.Text("Paris")
	fb = question.Evaluate(domain.Question{ID: "q2", Prompt: "Capital?", Answer: &text}, domain.Text("Paris"))
	require.True(t, fb.Correct)
	require.Empty(t, fb.Options)

	fb = question.Evaluate(domain.Question{ID: "q2", Prompt: "Capital?", Answer: &text}, domain.Text("  paris "))
	require.True(t, fb.Correct, "free text is graded case-insensitively")
}

type recorder struct {
	values []domain.AnswerValue
}

func (r *recorder) emit(_ string, v domain.AnswerValue) {
	r.values = append(r.values, v)
}
