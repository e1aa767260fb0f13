// Package question models how a player interacts with a single quiz question.
package question

import (
	"strings"

	"lesson-quiz-service/internal/domain"
)

// Mode is the interaction style of a question.
type Mode int

const (
	ModeSingle Mode = iota
	ModeMulti
	ModeFreeText
)

const selectAllPhrase = "select all that apply"

func (m Mode) String() string {
	switch m {
	case ModeMulti:
		return "multi"
	case ModeFreeText:
		return "text"
	default:
		return "single"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Classify picks the interaction mode from the question's shape.
// Multi-select is inferred from the prompt wording; there is no explicit type field.
func Classify(q domain.Question) Mode {
	switch {
	case len(q.Options) == 0:
		return ModeFreeText
	case len(q.Options) > 2 && strings.Contains(strings.ToLower(q.Prompt), selectAllPhrase):
		return ModeMulti
	default:
		return ModeSingle
	}
}

// EmptyValue is the unanswered value for a mode.
func EmptyValue(m Mode) domain.AnswerValue {
	if m == ModeMulti {
		return domain.Set()
	}
	return domain.Text("")
}

// EmitFunc receives the full current answer after every change.
type EmitFunc func(questionID string, value domain.AnswerValue)

// Model holds the transient selection for one question.
// It is not safe for concurrent use; the owning session serializes access.
type Model struct {
	question domain.Question
	mode     Mode
	value    domain.AnswerValue
	emit     EmitFunc
}

func New(q domain.Question, emit EmitFunc) *Model {
	m := &Model{emit: emit}
	m.load(q)
	return m
}

// Load points the model at q. The selection is cleared whenever the question id changes,
// or when the same question now needs a different interaction mode.
func (m *Model) Load(q domain.Question) {
	if q.ID == m.question.ID && Classify(q) == m.mode {
		m.question = q
		return
	}
	m.load(q)
}

func (m *Model) load(q domain.Question) {
	m.question = q
	m.mode = Classify(q)
	m.value = EmptyValue(m.mode)
}

// Reset clears the selection without emitting.
func (m *Model) Reset() {
	m.value = EmptyValue(m.mode)
}

func (m *Model) Question() domain.Question { return m.question }

func (m *Model) Mode() Mode { return m.mode }

func (m *Model) Value() domain.AnswerValue { return m.value }

// Edit replaces the free-text answer. Empty strings are emitted too.
func (m *Model) Edit(text string) error {
	if m.mode != ModeFreeText {
		return domain.ErrModeMismatch
	}
	m.change(domain.Text(text))
	return nil
}

// Select replaces the single-choice selection.
func (m *Model) Select(option string) error {
	if m.mode != ModeSingle {
		return domain.ErrModeMismatch
	}
	if !m.hasOption(option) {
		return domain.ErrUnknownOption
	}
	m.change(domain.Text(option))
	return nil
}

// Toggle adds option to the multi-select collection, or removes it if present.
func (m *Model) Toggle(option string) error {
	if m.mode != ModeMulti {
		return domain.ErrModeMismatch
	}
	if !m.hasOption(option) {
		return domain.ErrUnknownOption
	}

	items := m.value.Items()
	next := make([]string, 0, len(items)+1)
	removed := false
	for _, it := range items {
		if it == option {
			removed = true
			continue
		}
		next = append(next, it)
	}
	if !removed {
		next = append(next, option)
	}
	m.change(domain.Set(next...))
	return nil
}

// Set assigns a whole value, as sent by clients that track the selection themselves.
func (m *Model) Set(v domain.AnswerValue) error {
	switch m.mode {
	case ModeFreeText:
		if v.IsMulti() {
			return domain.ErrModeMismatch
		}
		m.change(v)
	case ModeSingle:
		if v.IsMulti() {
			return domain.ErrModeMismatch
		}
		if v.Text() != "" && !m.hasOption(v.Text()) {
			return domain.ErrUnknownOption
		}
		m.change(v)
	case ModeMulti:
		if !v.IsMulti() {
			return domain.ErrModeMismatch
		}
		seen := make(map[string]struct{})
		items := make([]string, 0, len(v.Items()))
		for _, it := range v.Items() {
			if !m.hasOption(it) {
				return domain.ErrUnknownOption
			}
			if _, dup := seen[it]; dup {
				continue
			}
			seen[it] = struct{}{}
			items = append(items, it)
		}
		m.change(domain.Set(items...))
	}
	return nil
}

func (m *Model) change(v domain.AnswerValue) {
	m.value = v
	if m.emit != nil {
		m.emit(m.question.ID, v)
	}
}

func (m *Model) hasOption(option string) bool {
	for _, o := range m.question.Options {
		if o == option {
			return true
		}
	}
	return false
}
