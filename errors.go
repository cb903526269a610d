package dab

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for compilation failures. Compilation is a pure
// function of its inputs, so none of these are transient: repeating the same
// request deterministically reproduces the same error.
var (
	// ErrUnknownEntity is returned when a request names an entity that is
	// not present in the metadata store.
	ErrUnknownEntity = errors.New("dab: unknown entity")

	// ErrNoSuchRelationship is returned when a request selects a
	// relationship for which no foreign key is defined.
	ErrNoSuchRelationship = errors.New("dab: no such relationship")

	// ErrPolicyMalformed is returned when an authorization filter fails to
	// parse or references an unknown field. Boundaries must translate it to
	// an access-denied outcome: a broken policy never admits access.
	ErrPolicyMalformed = errors.New("dab: malformed policy")

	// ErrUnsupportedColumnType is returned at metadata-load time when a
	// column's declared type has no mapping to a value kind.
	ErrUnsupportedColumnType = errors.New("dab: unsupported column type")

	// ErrInvalidParameterValue is returned when a supplied literal cannot
	// be coerced to the target column's value kind.
	ErrInvalidParameterValue = errors.New("dab: invalid parameter value")

	// ErrRenderUnsupported is returned when a requested combination cannot
	// be rendered for the selected dialect. This is a configuration error.
	ErrRenderUnsupported = errors.New("dab: render unsupported")
)

// UnknownEntityError reports a request against an entity the metadata store
// does not know.
type UnknownEntityError struct {
	entity string
}

// Error returns the error string.
func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("dab: unknown entity %q", e.entity)
}

// Is reports whether the target error matches UnknownEntityError.
func (e *UnknownEntityError) Is(err error) bool {
	return err == ErrUnknownEntity
}

// Entity returns the entity name that failed to resolve.
func (e *UnknownEntityError) Entity() string {
	return e.entity
}

// NewUnknownEntityError returns a new UnknownEntityError for the given entity.
func NewUnknownEntityError(entity string) *UnknownEntityError {
	return &UnknownEntityError{entity: entity}
}

// IsUnknownEntity returns true if the error is an UnknownEntityError.
func IsUnknownEntity(err error) bool {
	if err == nil {
		return false
	}
	var e *UnknownEntityError
	return errors.As(err, &e) || errors.Is(err, ErrUnknownEntity)
}

// NoSuchRelationshipError reports a relationship selection with no foreign
// key between the two entities.
type NoSuchRelationshipError struct {
	entity string
	target string
}

// Error returns the error string.
func (e *NoSuchRelationshipError) Error() string {
	return fmt.Sprintf("dab: no relationship from %q to %q", e.entity, e.target)
}

// Is reports whether the target error matches NoSuchRelationshipError.
func (e *NoSuchRelationshipError) Is(err error) bool {
	return err == ErrNoSuchRelationship
}

// Entity returns the source entity of the failed selection.
func (e *NoSuchRelationshipError) Entity() string {
	return e.entity
}

// Target returns the target entity of the failed selection.
func (e *NoSuchRelationshipError) Target() string {
	return e.target
}

// NewNoSuchRelationshipError returns a new NoSuchRelationshipError.
func NewNoSuchRelationshipError(entity, target string) *NoSuchRelationshipError {
	return &NoSuchRelationshipError{entity: entity, target: target}
}

// IsNoSuchRelationship returns true if the error is a NoSuchRelationshipError.
func IsNoSuchRelationship(err error) bool {
	if err == nil {
		return false
	}
	var e *NoSuchRelationshipError
	return errors.As(err, &e) || errors.Is(err, ErrNoSuchRelationship)
}

// PolicyMalformedError reports an authorization filter that failed to
// compile. It carries the role and operation so boundaries can log the
// offending rule while still answering access-denied to the caller.
type PolicyMalformedError struct {
	Entity string
	Role   string
	Op     Op
	Err    error // Underlying parse or binding error.
}

// Error returns the error string.
func (e *PolicyMalformedError) Error() string {
	return fmt.Sprintf("dab: malformed policy for role %q, %s on %q: %v", e.Role, e.Op, e.Entity, e.Err)
}

// Is reports whether the target error matches PolicyMalformedError.
func (e *PolicyMalformedError) Is(err error) bool {
	return err == ErrPolicyMalformed
}

// Unwrap returns the underlying error.
func (e *PolicyMalformedError) Unwrap() error {
	return e.Err
}

// NewPolicyMalformedError returns a new PolicyMalformedError.
func NewPolicyMalformedError(entity, role string, op Op, err error) *PolicyMalformedError {
	return &PolicyMalformedError{Entity: entity, Role: role, Op: op, Err: err}
}

// IsPolicyMalformed returns true if the error is a PolicyMalformedError.
func IsPolicyMalformed(err error) bool {
	if err == nil {
		return false
	}
	var e *PolicyMalformedError
	return errors.As(err, &e) || errors.Is(err, ErrPolicyMalformed)
}

// UnsupportedColumnTypeError reports a column whose declared database type
// has no value-kind mapping. It is raised while loading metadata, never
// per request.
type UnsupportedColumnTypeError struct {
	Column   string
	TypeName string
}

// Error returns the error string.
func (e *UnsupportedColumnTypeError) Error() string {
	return fmt.Sprintf("dab: column %q has unsupported type %q", e.Column, e.TypeName)
}

// Is reports whether the target error matches UnsupportedColumnTypeError.
func (e *UnsupportedColumnTypeError) Is(err error) bool {
	return err == ErrUnsupportedColumnType
}

// NewUnsupportedColumnTypeError returns a new UnsupportedColumnTypeError.
func NewUnsupportedColumnTypeError(column, typeName string) *UnsupportedColumnTypeError {
	return &UnsupportedColumnTypeError{Column: column, TypeName: typeName}
}

// IsUnsupportedColumnType returns true if the error is an UnsupportedColumnTypeError.
func IsUnsupportedColumnType(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedColumnTypeError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupportedColumnType)
}

// InvalidParameterValueError reports a caller-supplied literal that cannot
// be coerced to its target column kind. Boundaries report it as a bad
// request; it is never retried.
type InvalidParameterValueError struct {
	Name string // Field or parameter name.
	Err  error  // Underlying coercion error.
}

// Error returns the error string.
func (e *InvalidParameterValueError) Error() string {
	return fmt.Sprintf("dab: invalid value for %q: %v", e.Name, e.Err)
}

// Is reports whether the target error matches InvalidParameterValueError.
func (e *InvalidParameterValueError) Is(err error) bool {
	return err == ErrInvalidParameterValue
}

// Unwrap returns the underlying error.
func (e *InvalidParameterValueError) Unwrap() error {
	return e.Err
}

// NewInvalidParameterValueError returns a new InvalidParameterValueError.
func NewInvalidParameterValueError(name string, err error) *InvalidParameterValueError {
	return &InvalidParameterValueError{Name: name, Err: err}
}

// IsInvalidParameterValue returns true if the error is an InvalidParameterValueError.
func IsInvalidParameterValue(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidParameterValueError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidParameterValue)
}

// RenderUnsupportedError reports a structure/dialect combination the
// renderer cannot express.
type RenderUnsupportedError struct {
	Dialect string
	Feature string
}

// Error returns the error string.
func (e *RenderUnsupportedError) Error() string {
	return fmt.Sprintf("dab: dialect %q cannot render %s", e.Dialect, e.Feature)
}

// Is reports whether the target error matches RenderUnsupportedError.
func (e *RenderUnsupportedError) Is(err error) bool {
	return err == ErrRenderUnsupported
}

// NewRenderUnsupportedError returns a new RenderUnsupportedError.
func NewRenderUnsupportedError(dialect, feature string) *RenderUnsupportedError {
	return &RenderUnsupportedError{Dialect: dialect, Feature: feature}
}

// IsRenderUnsupported returns true if the error is a RenderUnsupportedError.
func IsRenderUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var e *RenderUnsupportedError
	return errors.As(err, &e) || errors.Is(err, ErrRenderUnsupported)
}
