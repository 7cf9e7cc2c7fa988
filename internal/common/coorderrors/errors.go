// Package coorderrors contains the errors returned by the cluster coordinator, the provisioning
// gate and the naming registry. Callers should match them with errors.As, since they are usually
// wrapped with additional context by the time they reach the caller.
//
// Teardown code never returns these directly; warnings collected during stop are aggregated into
// a multierror.Error from package github.com/hashicorp/go-multierror instead.
package coorderrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrDuplicateLocation is returned when a location with the requested name is already defined.
// The coordinator never overwrites another location's definition.
type ErrDuplicateLocation struct {
	// Name of the location that was requested
	Name string
	// Spec of the definition already registered under Name, if known
	ExistingSpec string
}

func (err *ErrDuplicateLocation) Error() string {
	if err.ExistingSpec != "" {
		return fmt.Sprintf("location %q is already defined: %s", err.Name, err.ExistingSpec)
	}
	return fmt.Sprintf("location %q is already defined", err.Name)
}

// ErrInvalidState is returned on a re-entrant lifecycle transition, or when a request is missing
// the context it needs to be served.
type ErrInvalidState struct {
	Component string // e.g. "cluster" or "marathon location"
	State     string // Current state, if relevant
	Action    string // The attempted action, e.g. "start"
	Message   string // Optional
}

func (err *ErrInvalidState) Error() (s string) {
	if err.State != "" {
		s = fmt.Sprintf("cannot %s %s in state %s", err.Action, err.Component, err.State)
	} else {
		s = fmt.Sprintf("cannot %s %s", err.Action, err.Component)
	}
	if err.Message != "" {
		s = s + fmt.Sprintf("; %s", err.Message)
	}
	return
}

// ErrUnsupportedWorkload is returned when a workload asks a framework for capacity the framework
// cannot provide for that kind of workload.
type ErrUnsupportedWorkload struct {
	Workload  string
	Framework string
}

func (err *ErrUnsupportedWorkload) Error() string {
	return fmt.Sprintf("workload %s is not supported by framework %s", err.Workload, err.Framework)
}

// ErrNoCapacity is returned when a task submission did not produce a task.
type ErrNoCapacity struct {
	Framework string
	Message   string
}

func (err *ErrNoCapacity) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("no capacity available on framework %s", err.Framework)
	}
	return fmt.Sprintf("no capacity available on framework %s; %s", err.Framework, err.Message)
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrFatal marks an error as unrecoverable. Best-effort code paths log and swallow errors, except
// for those wrapped in ErrFatal, which are always propagated.
type ErrFatal struct {
	Err error
}

func (err *ErrFatal) Error() string {
	return fmt.Sprintf("fatal: %v", err.Err)
}

func (err *ErrFatal) Unwrap() error {
	return err.Err
}

func (err *ErrFatal) Cause() error {
	return err.Err
}

// NewFatal wraps err so that IsFatal reports true for it and for anything wrapping it.
func NewFatal(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&ErrFatal{Err: err})
}

// IsFatal reports whether any error in err's chain is an ErrFatal.
func IsFatal(err error) bool {
	var e *ErrFatal
	return errors.As(err, &e)
}
