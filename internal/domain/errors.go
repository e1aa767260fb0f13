package domain

import (
	stderrors "errors"

	"lesson-quiz-service/internal/errors"
)

var (
	// ErrQuizNotFound is returned when a lesson has no quiz.
	ErrQuizNotFound = errors.New(errors.CodeNotFound, errors.WithMessage("no quiz available for this lesson"))
	// ErrIncomplete blocks a manual submission while required answers are missing.
	ErrIncomplete = errors.New(errors.CodeFailedPrecondition, errors.WithMessage("answer every question before submitting"))
	// ErrInvalidState rejects an action the current session state does not allow.
	ErrInvalidState = errors.New(errors.CodeFailedPrecondition, errors.WithMessage("action not allowed in the current state"))
	// ErrUnknownQuestion indicates a question id that is not part of the quiz.
	ErrUnknownQuestion = errors.New(errors.CodeInvalidArgument, errors.WithMessage("question not found"))
	// ErrUnknownOption indicates an option that the question does not offer.
	ErrUnknownOption = errors.New(errors.CodeInvalidArgument, errors.WithMessage("option not found"))
	// ErrModeMismatch indicates an interaction that does not fit the question's mode.
	ErrModeMismatch = errors.New(errors.CodeInvalidArgument, errors.WithMessage("interaction does not match question type"))
	// ErrDuplicateQuestion is returned by Quiz.Validate.
	ErrDuplicateQuestion = errors.New(errors.CodeInvalidArgument, errors.WithMessage("duplicate question id"))
	// ErrClosed is returned by a session that has been torn down.
	ErrClosed = errors.New(errors.CodeFailedPrecondition, errors.WithMessage("session closed"))
)

// Unavailable wraps a transport or store failure so callers can prompt for a retry.
// NotFound errors pass through untouched.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Code == errors.CodeNotFound {
		return err
	}
	return errors.New(errors.CodeUnavailable,
		errors.WithMessage("service unavailable, please try again"),
		errors.WithCause(err),
	)
}

// IsNotFound reports whether err carries the NotFound code.
func IsNotFound(err error) bool {
	return errors.CodeOf(err) == errors.CodeNotFound
}

// IsUnavailable reports whether err carries the Unavailable code.
func IsUnavailable(err error) bool {
	return errors.CodeOf(err) == errors.CodeUnavailable
}
