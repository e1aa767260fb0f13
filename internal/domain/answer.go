package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AnswerValue is a player's answer: a single string (single choice or free text)
// or an unordered collection of strings (multi-select). The zero value means unanswered.
type AnswerValue struct {
	text  string
	items []string
	multi bool
}

// Text builds a single-valued answer.
func Text(s string) AnswerValue {
	return AnswerValue{text: s}
}

// Set builds a multi-valued answer. The result is never nil, even without items.
func Set(items ...string) AnswerValue {
	cp := make([]string, len(items))
	copy(cp, items)
	return AnswerValue{items: cp, multi: true}
}

func (v AnswerValue) IsMulti() bool { return v.multi }

// Text returns the single value; empty for multi-valued answers.
func (v AnswerValue) Text() string { return v.text }

// Items returns a copy of the collection; nil for single-valued answers.
func (v AnswerValue) Items() []string {
	if !v.multi {
		return nil
	}
	cp := make([]string, len(v.items))
	copy(cp, v.items)
	return cp
}

// Sorted returns the collection in ascending order.
func (v AnswerValue) Sorted() []string {
	items := v.Items()
	sort.Strings(items)
	return items
}

// IsEmpty reports whether the answer would fail the completeness rule:
// whitespace-only text or an empty collection.
func (v AnswerValue) IsEmpty() bool {
	if v.multi {
		return len(v.items) == 0
	}
	return strings.TrimSpace(v.text) == ""
}

// Contains reports whether option is the single value or a member of the collection.
func (v AnswerValue) Contains(option string) bool {
	if !v.multi {
		return v.text == option
	}
	for _, it := range v.items {
		if it == option {
			return true
		}
	}
	return false
}

// Equal is structural equality: exact strings, or equal collections ignoring order.
func (v AnswerValue) Equal(o AnswerValue) bool {
	if v.multi != o.multi {
		return false
	}
	if !v.multi {
		return v.text == o.text
	}
	a, b := v.Sorted(), o.Sorted()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (v AnswerValue) String() string {
	if v.multi {
		return "[" + strings.Join(v.items, ", ") + "]"
	}
	return v.text
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.multi {
		items := v.items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(v.text)
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = AnswerValue{}
		return nil
	case len(data) > 0 && data[0] == '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("answer value: %w", err)
		}
		*v = Set(items...)
		return nil
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("answer value: %w", err)
		}
		*v = Text(s)
		return nil
	}
}

// SubmittedAnswer pairs a question with the player's answer.
type SubmittedAnswer struct {
	QuestionID string      `json:"questionId"`
	Value      AnswerValue `json:"value"`
}
