package cluster

import (
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/coorderrors"
	"github.com/armadaproject/mesoscoordinator/internal/common/healthmonitor"
	"github.com/armadaproject/mesoscoordinator/internal/common/metrics"
	"github.com/armadaproject/mesoscoordinator/internal/framework"
	"github.com/armadaproject/mesoscoordinator/internal/location"
	"github.com/armadaproject/mesoscoordinator/internal/registry"
)

const (
	phaseDisconnectSensors = "disconnect sensors"
	phaseStopApplications  = "stop applications"
	phaseStopFrameworks    = "stop frameworks"
	phaseNodeStop          = "node stop"
	phaseDeleteLocation    = "delete location"
)

// Start creates the dynamic location, starts every framework and then starts polling the master.
// Failing to create the location fails the start and leaves the state unchanged. Frameworks that fail to start
// are listed in the report but do not fail the start, and polling begins regardless.
func (c *Cluster) Start(ctx *coordcontext.Context, locations []location.Location) (*StartReport, error) {
	ctx = c.logContext(ctx)

	c.mu.Lock()
	previous := c.state
	if previous == Starting || previous == Stopping || previous == Running {
		c.mu.Unlock()
		return nil, errors.WithStack(&coorderrors.ErrInvalidState{Component: c.String(), State: string(previous), Action: "start"})
	}
	c.state = Starting
	c.mu.Unlock()

	c.setUp(false)
	metrics.ClusterUp.WithLabelValues(c.config.Id).Set(0)

	loc, err := c.CreateLocation(ctx, nil)
	if err != nil {
		c.setState(previous)
		return nil, err
	}

	if err := c.deps.Registry.Manage(c, ""); err != nil {
		ctx.Log.WithError(err).Error("Error registering cluster")
	}

	frameworkLocations := make([]location.Location, 0, len(locations)+1)
	frameworkLocations = append(frameworkLocations, locations...)
	frameworkLocations = append(frameworkLocations, loc)
	report := &StartReport{FrameworkErrors: c.startFrameworks(ctx, frameworkLocations)}
	if report.HasErrors() {
		ctx.Log.WithError(report.FrameworkErrors).Warn("Some frameworks failed to start")
	}

	c.connectSensors()
	c.setState(Running)
	ctx.Log.Infof("Started cluster with master %s: %s", c.config.MasterUrl, report)
	return report, nil
}

func (c *Cluster) startFrameworks(ctx *coordcontext.Context, locations []location.Location) *multierror.Error {
	var result *multierror.Error
	var mu sync.Mutex
	g, groupCtx := coordcontext.ErrGroup(ctx)
	for _, fw := range c.Frameworks() {
		fw := fw
		g.Go(func() error {
			if err := fw.Start(groupCtx, locations); err != nil {
				mu.Lock()
				defer mu.Unlock()
				result = multierror.Append(result, errors.WithMessagef(err, "error starting framework %s", fw.GetName()))
			}
			// A returned error would cancel groupCtx for the other frameworks
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// Stop runs every stop phase even if an earlier one fails, each bounded by timeout, and reports the failures.
// It returns an error only if the cluster is already starting or stopping.
func (c *Cluster) Stop(ctx *coordcontext.Context, timeout time.Duration) (*StopReport, error) {
	ctx = c.logContext(ctx)

	c.mu.Lock()
	state := c.state
	if state == Starting || state == Stopping {
		c.mu.Unlock()
		return nil, errors.WithStack(&coorderrors.ErrInvalidState{Component: c.String(), State: string(state), Action: "stop"})
	}
	c.state = Stopping
	sensors := c.sensors
	c.sensors = nil
	c.mu.Unlock()

	report := &StopReport{clusterId: c.config.Id}

	report.run(ctx, phaseDisconnectSensors, func() error {
		if sensors != nil && sensors.StopAll(timeout) {
			return errors.Errorf("polls still running after %s", timeout)
		}
		return nil
	})

	c.setUp(false)
	c.health.SetUnhealthy(healthmonitor.StoppedReason)
	metrics.ClusterUp.WithLabelValues(c.config.Id).Set(0)

	report.run(ctx, phaseStopApplications, func() error {
		return c.stopApplications(ctx, timeout)
	})
	report.run(ctx, phaseStopFrameworks, func() error {
		return stopAll(ctx, timeout, c.Frameworks(), func(ctx *coordcontext.Context, fw framework.Framework) error {
			return errors.WithMessagef(fw.Stop(ctx), "error stopping framework %s", fw.GetName())
		})
	})
	report.run(ctx, phaseNodeStop, func() error {
		c.deps.Registry.Unmanage(c.GetId())
		return nil
	})
	report.run(ctx, phaseDeleteLocation, func() error {
		return c.DeleteLocation(ctx)
	})

	c.setState(Stopped)
	ctx.Log.Infof("Stopped cluster: %s", report)
	return report, nil
}

// stopApplications stops the applications owning any entity of this cluster, other than the cluster's own.
func (c *Cluster) stopApplications(ctx *coordcontext.Context, timeout time.Duration) error {
	applications := []registry.Stoppable{}
	seen := map[string]bool{}
	for _, entity := range c.deps.Registry.SameCluster(c.config.Id) {
		applicationId := entity.GetApplicationId()
		if applicationId == "" || applicationId == c.config.ApplicationId || seen[applicationId] {
			continue
		}
		if entity.GetKind() == registry.KindFramework || entity.GetKind() == registry.KindCluster {
			continue
		}
		seen[applicationId] = true
		application, ok := c.deps.Registry.Get(applicationId)
		if !ok {
			ctx.Log.Debugf("Application %s of %s is not managed", applicationId, entity.GetName())
			continue
		}
		stoppable, ok := application.(registry.Stoppable)
		if !ok {
			ctx.Log.Debugf("Application %s cannot be stopped", applicationId)
			continue
		}
		applications = append(applications, stoppable)
	}
	return stopAll(ctx, timeout, applications, func(ctx *coordcontext.Context, application registry.Stoppable) error {
		return errors.WithMessagef(application.Stop(ctx), "error stopping application %s", application.GetName())
	})
}

// stopAll stops items in parallel and waits up to timeout for them to finish. Stops still running after the
// timeout are not interrupted.
func stopAll[T any](ctx *coordcontext.Context, timeout time.Duration, items []T, stop func(*coordcontext.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	timeoutCtx, cancel := coordcontext.WithTimeout(ctx, timeout)
	defer cancel()

	var result *multierror.Error
	var mu sync.Mutex
	var g errgroup.Group
	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := recoverStop(timeoutCtx, item, stop); err != nil {
				mu.Lock()
				defer mu.Unlock()
				result = multierror.Append(result, err)
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-timeoutCtx.Done():
		mu.Lock()
		result = multierror.Append(result, errors.Errorf("timed out after %s waiting for %d stops", timeout, len(items)))
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()
	if result == nil {
		return nil
	}
	// Stops that outlive the timeout may still append to result
	return multierror.Append(nil, result.Errors...).ErrorOrNil()
}

// recoverStop reports a panic in stop as an error, since stops run on their own goroutines.
func recoverStop[T any](ctx *coordcontext.Context, item T, stop func(*coordcontext.Context, T) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %v", p)
		}
	}()
	return stop(ctx, item)
}
