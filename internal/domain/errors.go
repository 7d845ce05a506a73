package domain

import (
	"errors"
	"fmt"
)

// Kind is the machine-checkable category carried by every engine error.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindUniqueViolation   Kind = "UNIQUE_CONSTRAINT_VIOLATION"
	KindMissingRequired   Kind = "MISSING_REQUIRED_FIELD"
	KindInvalidValue      Kind = "INVALID_VALUE"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindMissingMapping    Kind = "MISSING_MAPPING"
	KindConflict          Kind = "CONFLICT"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindForbidden         Kind = "FORBIDDEN"
	KindStorageFailure    Kind = "STORAGE_FAILURE"
)

// Error is the structured failure returned by schema, store and workflow code.
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending property, when there is one.
	Field string
	Value any
	// From and To are set for InvalidTransition.
	From string
	To   string
	// Err is the underlying cause. Only StorageFailure exposes it in Error().
	Err error
}

func (e *Error) Error() string {
	if e.Kind == KindStorageFailure && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Details returns the structured fields for an error envelope.
func (e *Error) Details() map[string]any {
	d := map[string]any{}
	if e.Field != "" {
		d["field"] = e.Field
	}
	if e.Value != nil {
		d["value"] = e.Value
	}
	if e.Kind == KindInvalidTransition {
		d["from"] = e.From
		d["to"] = e.To
	}
	if len(d) == 0 {
		return nil
	}
	return d
}

// KindOf reports the kind of err. Errors outside the taxonomy report "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func NotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", what, id), Value: id}
}

func UniqueViolation(field string, value any) *Error {
	return &Error{
		Kind:    KindUniqueViolation,
		Message: fmt.Sprintf("value %v for %s is already in use", value, field),
		Field:   field,
		Value:   value,
	}
}

func MissingRequired(field string) *Error {
	return &Error{Kind: KindMissingRequired, Message: fmt.Sprintf("%s is required", field), Field: field}
}

func InvalidValue(field string, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidValue, Message: field + ": " + fmt.Sprintf(format, args...), Field: field}
}

func InvalidTransition(from, to string) *Error {
	if from == "" {
		return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("invalid state transition (none) -> %s", to), To: to}
	}
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("invalid state transition %s -> %s", from, to), From: from, To: to}
}

func MissingMapping(field string) *Error {
	return &Error{Kind: KindMissingMapping, Message: fmt.Sprintf("required target property %s has no mapping or default", field), Field: field}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// StorageFailure wraps an unexpected storage error. A nil err returns nil.
func StorageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return err
	}
	return &Error{Kind: KindStorageFailure, Message: op, Err: err}
}
