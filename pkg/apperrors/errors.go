// Package apperrors defines the error taxonomy shared by the sentinel
// services: not-found, validation, quota, conflict, unavailable, internal.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrValidation    = errors.New("validation failed")
	ErrLimitExceeded = errors.New("plan limit exceeded")
	ErrConflict      = errors.New("conflicting state")
	ErrUnavailable   = errors.New("collaborator unavailable")
)

// NotFoundError marks a missing job or result.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError carries the offending field and a human message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// LimitExceededError reports a quota denial with plan context.
type LimitExceededError struct {
	Resource string
	Limit    int
	Current  int
	Message  string
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit reached (%d/%d): %s", e.Resource, e.Current, e.Limit, e.Message)
}

func (e *LimitExceededError) Unwrap() error {
	return ErrLimitExceeded
}

func NewLimitExceeded(resource string, limit, current int, message string) *LimitExceededError {
	return &LimitExceededError{Resource: resource, Limit: limit, Current: current, Message: message}
}

// ConflictError marks an operation illegal in the current state, such as
// cancelling a scan that already finished.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

func NewConflict(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// UnavailableError wraps a failed call to a peer service.
type UnavailableError struct {
	Service string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return ErrUnavailable
}

func NewUnavailable(service string, err error) *UnavailableError {
	return &UnavailableError{Service: service, Err: err}
}
