package registry

import (
	"errors"
	"fmt"
)

// ErrConflict is matched by every *ConflictError.
var ErrConflict = errors.New("registry conflict")

// ConflictKind names the expected, recoverable condition that blocked an operation.
type ConflictKind string

const (
	CategoryExists   ConflictKind = "category already exists"
	CategoryNotFound ConflictKind = "category not found"
	CategoryNotEmpty ConflictKind = "category is not empty"
	ChannelExists    ConflictKind = "channel already exists"
	ChannelNotFound  ConflictKind = "channel not found"
)

// ConflictError reports a validation conflict. The registry is unchanged when one is returned.
type ConflictError struct {
	Op       string
	Kind     ConflictKind
	Category string
	Channel  string
}

func (e *ConflictError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("%s: %s (category %q, channel %q)", e.Op, e.Kind, e.Category, e.Channel)
	}
	return fmt.Sprintf("%s: %s (category %q)", e.Op, e.Kind, e.Category)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFound reports whether the conflict is about a missing entity.
func (e *ConflictError) NotFound() bool {
	return e.Kind == CategoryNotFound || e.Kind == ChannelNotFound
}

// IsConflict reports whether err is a *ConflictError, optionally of one of the given kinds.
func IsConflict(err error, kinds ...ConflictKind) bool {
	var ce *ConflictError
	if !errors.As(err, &ce) {
		return false
	}
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if ce.Kind == k {
			return true
		}
	}
	return false
}

func conflict(op string, kind ConflictKind, category, channel string) *ConflictError {
	return &ConflictError{Op: op, Kind: kind, Category: category, Channel: channel}
}
