package errors

import (
	"errors"
	"fmt"

	"filterchain/pkg/models"
)

// Each error kind carries the reason code a filter publishes when the
// error ends a message's trip through the chain.
var (
	ErrNotFound    = NewError("NOT_FOUND", "resource not found", models.SystemDBError)
	ErrDatabase    = NewError("DATABASE_ERROR", "database error", models.SystemDBError)
	ErrValidation  = NewError("VALIDATION_ERROR", "validation failed", models.SystemError)
	ErrInternal    = NewError("INTERNAL_ERROR", "internal error", models.SystemError)
	ErrTimeout     = NewError("TIMEOUT", "operation timed out", models.SystemDBError)
	ErrUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", models.SystemDBError)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Reason    int32
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, reason int32) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Reason:  reason,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that copies made by WithCause still compare equal
// to the sentinel they came from.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return e.Code != ErrValidation.Code && e.Code != ErrNotFound.Code
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}

	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}

	return e.Code == ErrValidation.Code || e.Code == ErrNotFound.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithMessage(message string) *Error {
	err := *e
	err.Message = message
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound.Code)
}

func IsDatabase(err error) bool {
	return hasCode(err, ErrDatabase.Code)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ReasonCode maps err to the result reason code. Errors from outside this
// package count as system errors.
func ReasonCode(err error) int32 {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return models.SystemError
}
