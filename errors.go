package depot

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/TheBitDrifter/bark"
	"github.com/google/uuid"
)

type LockedStorageError struct{}

func (e LockedStorageError) Error() string {
	return "storage is currently locked"
}

type EntityNotFoundError struct {
	Entity Entity
}

func (e EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %v not found", e.Entity)
}

// IsNotFound reports whether err marks a stale or unknown entity.
func IsNotFound(err error) bool {
	var nf EntityNotFoundError
	return errors.As(err, &nf)
}

type ComponentNotFoundError struct {
	Entity Entity
	Type   reflect.Type
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("entity %v has no %v component", e.Entity, e.Type)
}

type UnregisteredComponentError struct {
	Type reflect.Type
}

func (e UnregisteredComponentError) Error() string {
	return fmt.Sprintf("component type %v is not registered", e.Type)
}

type DuplicateComponentError struct {
	Type reflect.Type
}

func (e DuplicateComponentError) Error() string {
	return fmt.Sprintf("component type %v appears more than once", e.Type)
}

type TooManyComponentsError struct {
	Type reflect.Type
}

func (e TooManyComponentsError) Error() string {
	return fmt.Sprintf("cannot register %v: limit of %d types reached", e.Type, MaxComponentTypes)
}

type TooManyResourcesError struct {
	Type reflect.Type
}

func (e TooManyResourcesError) Error() string {
	return fmt.Sprintf("cannot register resource %v: limit of %d types reached", e.Type, MaxResourceTypes)
}

type ResourceNotFoundError struct {
	Type reflect.Type
}

func (e ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource %v not found", e.Type)
}

// AccessViolationError is the panic value raised when a cursor is asked for a
// component its query did not declare with the needed access.
type AccessViolationError struct {
	Type   reflect.Type
	Access string
}

func (e AccessViolationError) Error() string {
	return fmt.Sprintf("query does not declare %s access to %v", e.Access, e.Type)
}

type CapacityError struct {
	Max int
}

func (e CapacityError) Error() string {
	return fmt.Sprintf("cache at maximum capacity (%d)", e.Max)
}

type ConflictingAccessError struct {
	First, Second string
	Components    []reflect.Type
	Resources     []reflect.Type
}

func (e ConflictingAccessError) Error() string {
	var parts []string
	for _, t := range e.Components {
		parts = append(parts, "component "+t.String())
	}
	for _, t := range e.Resources {
		parts = append(parts, "resource "+t.String())
	}
	return fmt.Sprintf("systems %q and %q conflict on %s with no ordering between them",
		e.First, e.Second, strings.Join(parts, ", "))
}

// BuildError is returned when a schedule fails to plan. It unwraps to the
// cause and carries the stack the failure was reported from.
type BuildError struct {
	Err   error
	Trace bark.Trace
}

func newBuildError(err error) BuildError {
	trace, _ := bark.GetTrace(bark.AddTrace(err))
	return BuildError{Err: err, Trace: trace}
}

func (e BuildError) Error() string {
	return e.Err.Error()
}

func (e BuildError) Unwrap() error {
	return e.Err
}

// Frames renders the trace one frame per entry.
func (e BuildError) Frames() []string {
	frames := make([]string, len(e.Trace.Frames))
	for i, f := range e.Trace.Frames {
		frames[i] = f.String()
	}
	return frames
}

type CycleError struct {
	Systems []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("ordering cycle: %s", strings.Join(e.Systems, " -> "))
}

type UnknownLabelError struct {
	System string
	Label  string
}

func (e UnknownLabelError) Error() string {
	return fmt.Sprintf("system %q is ordered against unknown label %q", e.System, e.Label)
}

type DuplicateSystemError struct {
	Name string
}

func (e DuplicateSystemError) Error() string {
	return fmt.Sprintf("label %q is already used", e.Name)
}

type InvalidParamError struct {
	System string
	Reason string
}

func (e InvalidParamError) Error() string {
	return fmt.Sprintf("system %q: %s", e.System, e.Reason)
}

// SystemError wraps a failure of one system, either while it ran or while its
// commands were applied.
type SystemError struct {
	System string
	Phase  string
	Err    error
}

func (e SystemError) Error() string {
	return fmt.Sprintf("system %q failed during %s: %v", e.System, e.Phase, e.Err)
}

func (e SystemError) Unwrap() error {
	return e.Err
}

type PanicError struct {
	Value any
	Stack []byte
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RunError aggregates every failure of one schedule pass.
type RunError struct {
	RunID  uuid.UUID
	Errors []error
}

func (e *RunError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("run %s: %d system error(s): %s", e.RunID, len(e.Errors), strings.Join(msgs, "; "))
}

func (e *RunError) Unwrap() []error {
	return e.Errors
}
