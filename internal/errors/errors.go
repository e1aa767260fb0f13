// Package errors attaches a status code and a player-safe message to failures,
// so the websocket, REST and CLI boundaries all report them the same way.
package errors

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
)

// Code reuses the gRPC status codes as the service-wide error vocabulary.
type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeUnavailable        = Code(codes.Unavailable)
	CodeInternal           = Code(codes.Internal)
)

func (c Code) String() string {
	return codes.Code(c).String()
}

// HTTPStatus is the response status used for c; unknown codes are server errors.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeFailedPrecondition:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromHTTP maps a response status back to a code, used by HTTP clients.
func CodeFromHTTP(status int) Code {
	switch {
	case status == http.StatusBadRequest:
		return CodeInvalidArgument
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeFailedPrecondition
	case status >= http.StatusInternalServerError && status != http.StatusInternalServerError:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// Error is a coded failure. Message is shown to players; the cause only reaches logs.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

type Option func(*Error)

// WithCause keeps err reachable through errors.Is and errors.As.
func WithCause(err error) Option {
	return func(e *Error) { e.cause = err }
}

func WithMessage(msg string) Option {
	return func(e *Error) { e.Message = msg }
}

// New builds an error whose message defaults to the code name.
func New(code Code, opts ...Option) *Error {
	e := &Error{Code: code, Message: code.String()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) HTTPStatusCode() int {
	return e.Code.HTTPStatus()
}

// Convert finds the coded error in err's chain; anything else becomes an internal error.
func Convert(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// CodeOf returns the code carried by err, CodeInternal for foreign errors.
func CodeOf(err error) Code {
	return Convert(err).Code
}
