package cluster

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/openconfig/goyang/pkg/indent"
	"github.com/pkg/errors"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/metrics"
)

// StartReport lists the frameworks that failed to start. A cluster with failed frameworks is still started.
type StartReport struct {
	FrameworkErrors *multierror.Error
}

func (r *StartReport) HasErrors() bool {
	return r.FrameworkErrors.ErrorOrNil() != nil
}

func (r *StartReport) String() string {
	if !r.HasErrors() {
		return "start completed"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "start completed with %d framework errors:\n", r.FrameworkErrors.Len())
	for _, err := range r.FrameworkErrors.Errors {
		fmt.Fprint(&sb, indent.String("\t", err.Error()+"\n"))
	}
	return sb.String()
}

// PhaseWarning records a stop phase that did not complete cleanly.
type PhaseWarning struct {
	Phase string
	Err   error
}

// StopReport collects the outcome of each stop phase. Stop always runs every phase; failures are warnings.
type StopReport struct {
	clusterId string
	Warnings  []PhaseWarning
}

func (r *StopReport) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns every warning as a single error, or nil if there were none.
func (r *StopReport) Err() error {
	var result *multierror.Error
	for _, warning := range r.Warnings {
		result = multierror.Append(result, errors.WithMessage(warning.Err, warning.Phase))
	}
	return result.ErrorOrNil()
}

func (r *StopReport) String() string {
	if !r.HasWarnings() {
		return "stop completed"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "stop completed with %d warnings:\n", len(r.Warnings))
	for _, warning := range r.Warnings {
		fmt.Fprint(&sb, indent.String("\t", warning.Phase+":\n"))
		fmt.Fprint(&sb, indent.String("\t\t", warning.Err.Error()+"\n"))
	}
	return sb.String()
}

// run executes one phase, recording an error or panic as a warning.
func (r *StopReport) run(ctx *coordcontext.Context, phase string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = errors.Errorf("panic: %v", p)
			}
		}()
		return fn()
	}()
	if err != nil {
		ctx.Log.WithError(err).Warnf("Stop phase %q failed", phase)
		metrics.StopWarnings.WithLabelValues(r.clusterId, phase).Inc()
		r.Warnings = append(r.Warnings, PhaseWarning{Phase: phase, Err: err})
	}
}
