package core

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NewChoiceError reports an invalid value for a field restricted to `valid` choices.
func NewChoiceError(field, value string, valid []string) error {
	msg := "invalid value " + strconv.Quote(value) + "; valid values are: " + strings.Join(valid, ", ")
	return NewValidationError(nil, FieldError{Field: field, Error: msg})
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

type notFound struct {
	message string
}

// NewNotFoundError is returned when a resource does not exist (or is hidden from the Actor).
func NewNotFoundError(msg string) error {
	return &notFound{message: msg}
}

func (nf notFound) Error() string {
	return nf.message
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*notFound)
	return ok
}

type forbidden struct {
	message string
}

func NewForbiddenError(msg string) error {
	return &forbidden{message: msg}
}

func (f forbidden) Error() string {
	return f.message
}

func IsForbidden(err error) bool {
	_, ok := errors.Cause(err).(*forbidden)
	return ok
}

type conflict struct {
	message string
}

// NewConflictError is returned when a write collides with existing state (eg: unique keys).
func NewConflictError(msg string) error {
	return &conflict{message: msg}
}

func (c conflict) Error() string {
	return c.message
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*conflict)
	return ok
}

type upstream struct {
	message string
	err     error
}

// NewUpstreamError is returned when an external collaborator (eg: the AI service) cannot be reached.
func NewUpstreamError(msg string, err error) error {
	return &upstream{message: msg, err: err}
}

func (u upstream) Error() string {
	if u.err == nil {
		return u.message
	}
	return u.message + ": " + u.err.Error()
}

func (u upstream) Message() string { return u.message }

func IsUpstream(err error) bool {
	_, ok := errors.Cause(err).(*upstream)
	return ok
}
