/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create an entity that already exists
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidUpdate is returned when an update descriptor is empty or malformed
	ErrInvalidUpdate = errors.New("invalid update")

	// ErrPrecondition is returned when a call lacks required context, such as the tenant
	ErrPrecondition = errors.New("precondition failed")

	// ErrNotImplemented is returned when an adapter does not support an operation
	ErrNotImplemented = errors.New("not implemented")

	// ErrConditionFailed is returned when a conditional update fails
	ErrConditionFailed = errors.New("condition check failed")
)

// ValidationCode and ValidationType mirror the status and type reported to API callers.
const (
	ValidationCode = 422
	ValidationType = "validation_error"
)

// FieldError describes a single violated constraint.
type FieldError struct {
	// Keyword is the schema keyword that failed (e.g. "type", "required").
	Keyword string `json:"keyword"`
	// Path is a JSON pointer to the offending value, "" for the document root.
	Path string `json:"path"`
	// Params carries keyword specific details (e.g. {"type": "string"}).
	Params map[string]any `json:"params,omitempty"`
	// Message is a human readable description.
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Path == "" {
		return f.Message
	}
	return fmt.Sprintf("%s %s", f.Path, f.Message)
}

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AlreadyExistsError represents an error when an entity already exists
type AlreadyExistsError struct {
	Type string
	Key  string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Type, e.Key)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// ValidationError is returned when data does not satisfy a schema. Data lists
// every violated constraint, not only the first one.
type ValidationError struct {
	Code    int          `json:"code"`
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Data    []FieldError `json:"data"`
}

func (e *ValidationError) Error() string {
	if len(e.Data) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Data))
	for i, f := range e.Data {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// InvalidUpdateError is returned for empty or malformed update descriptors.
type InvalidUpdateError struct {
	Reason string
}

func (e *InvalidUpdateError) Error() string {
	return e.Reason
}

func (e *InvalidUpdateError) Is(target error) bool {
	return target == ErrInvalidUpdate
}

// PreconditionError is returned when an operation cannot be attempted because
// the call is missing required context.
type PreconditionError struct {
	Condition string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Condition)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// NotImplementedError is returned by adapters for operations their backend cannot serve.
type NotImplementedError struct {
	Adapter   string
	Operation string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s: %s is not implemented", e.Adapter, e.Operation)
}

func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// ConditionFailedError represents a failed conditional operation
type ConditionFailedError struct {
	Operation string
	Condition string
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition check failed for %s operation: %s", e.Operation, e.Condition)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

// Helper functions for creating errors

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return &NotFoundError{Type: entityType, Key: key}
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(entityType, key string) error {
	return &AlreadyExistsError{Type: entityType, Key: key}
}

// NewValidationError creates a ValidationError holding the given violations.
func NewValidationError(violations ...FieldError) *ValidationError {
	return &ValidationError{
		Code:    ValidationCode,
		Type:    ValidationType,
		Message: "parameters validation error",
		Data:    violations,
	}
}

// NewFieldValidationError creates a ValidationError for a single field.
func NewFieldValidationError(field, message string) error {
	path := ""
	if field != "" {
		path = "/" + field
	}
	return NewValidationError(FieldError{Keyword: "invalid", Path: path, Message: message})
}

// NewInvalidUpdateError creates a new InvalidUpdateError
func NewInvalidUpdateError(reason string) error {
	return &InvalidUpdateError{Reason: reason}
}

// NewPreconditionError creates a new PreconditionError
func NewPreconditionError(condition string) error {
	return &PreconditionError{Condition: condition}
}

// NewNotImplementedError creates a new NotImplementedError
func NewNotImplementedError(adapter, operation string) error {
	return &NotImplementedError{Adapter: adapter, Operation: operation}
}

// NewConditionFailedError creates a new ConditionFailedError
func NewConditionFailedError(operation, condition string) error {
	return &ConditionFailedError{Operation: operation, Condition: condition}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInvalidUpdate checks if an error is an invalid update error
func IsInvalidUpdate(err error) bool {
	return errors.Is(err, ErrInvalidUpdate)
}

// IsPrecondition checks if an error is a precondition error
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsNotImplemented checks if an error is a not implemented error
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}

// IsConditionFailed checks if an error is a condition failed error
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// AsValidationError returns the ValidationError in err's chain, if any.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
