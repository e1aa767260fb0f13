package session

import (
	"time"

	"lesson-quiz-service/internal/domain"
	"lesson-quiz-service/internal/question"
)

// Status is the controller's position in the attempt lifecycle.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusSubmitting
	StatusCompleted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusSubmitting:
		return "submitting"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger records what started a submission.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerTimeout Trigger = "timeout"
)

// DefaultDuration is the countdown given to every attempt unless configured otherwise.
const DefaultDuration = 600 * time.Second

// Snapshot is a read-only copy of the session state.
// Questions never carry correct answers; Feedback is attached once the attempt is submitted.
type Snapshot struct {
	Status    Status                        `json:"status"`
	LessonID  string                        `json:"lessonId"`
	QuizID    string                        `json:"quizId,omitempty"`
	Questions []question.View               `json:"questions"`
	Answers   map[string]domain.AnswerValue `json:"answers"`
	Remaining int                           `json:"remainingSeconds"`
	Submitted bool                          `json:"submitted"`
	Score     *int                          `json:"score"`
	Attempts  []domain.Attempt              `json:"attempts"`
	Loading   bool                          `json:"loading"`
	Error     string                        `json:"error,omitempty"`
	CanSubmit bool                          `json:"canSubmit"`
	Trigger   Trigger                       `json:"trigger,omitempty"`
}

// Ticker delivers countdown ticks. Tests swap it for a manually driven one.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }

func (t timeTicker) Stop() { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}
