package domain

const (
	EventNameAttemptRecorded = "attempt.recorded"
)

type EventAttemptRecorded struct {
	Attempt Attempt
	// Correct is the number of correctly answered questions out of Total.
	Correct int
	Total   int
}

func (EventAttemptRecorded) Name() string { return EventNameAttemptRecorded }
