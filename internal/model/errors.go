package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("event not found")
	ErrStoreUnavailable = errors.New("event store unavailable")
)

// ValidationError blocks persistence until the caller corrects Field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError is returned when an update or delete targets a missing id.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("event %d not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StoreUnavailableError wraps a failure of the persistence layer itself.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, ErrStoreUnavailable)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
