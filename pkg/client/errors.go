package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrTransport matches every transport failure, including parse failures.
	ErrTransport = errors.New("transport error")

	// ErrCancelled matches failures caused by a cancelled request context.
	ErrCancelled = errors.New("request cancelled")

	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("page must be >= 1")
)

// TransportError is a non-success HTTP status or a network failure.
type TransportError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("comments %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("comments %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ParseError is a successful response whose body is not a JSON array of comments.
// It is a transport error for propagation purposes.
type ParseError struct {
	Page int
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse comments page %d: %v", e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes every ParseError match ErrTransport.
func (e *ParseError) Is(target error) bool {
	return target == ErrTransport
}

// CancelledError reports that the request context was cancelled before or while the
// request was outstanding. Err is the context error.
type CancelledError struct {
	Page int
	Err  error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("comments page %d: %v: %v", e.Page, ErrCancelled, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CancelledError) Unwrap() error {
	return e.Err
}

// Is makes every CancelledError match ErrCancelled.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// IsCancelled reports whether err is a cancellation rather than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
