// Package orchestrator runs the staged deploy pipeline. The pipeline is an
// ordered list of stages with a monotonic deadline checked at every stage
// boundary; tier features (load balancer, CDN) appear as extra stages rather
// than as variant pipelines. After the partial-state checkpoint a failure
// triggers compensating cleanup when rollback is enabled.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/support/pricing"
	"github.com/geusemaker/geusemaker/support/resource"
	"github.com/geusemaker/geusemaker/support/selection"
	"github.com/geusemaker/geusemaker/support/teardown"
)

// StateStore is the slice of the state store the pipeline needs.
type StateStore interface {
	Save(ctx context.Context, st *api.DeploymentState) error
}

// Cleaner runs the compensating destruction pass after a failed deploy.
type Cleaner interface {
	Destroy(ctx context.Context, st *api.DeploymentState, opts teardown.Options) *teardown.Result
}

// Error wraps a stage failure, carrying the cleanup outcome when a
// compensating pass ran.
type Error struct {
	Stage   string
	Err     error
	Cleanup *teardown.Result
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("deploy stage %q failed: %v", e.Stage, e.Err)
	switch {
	case e.Cleanup == nil:
	case e.Cleanup.Success():
		msg += fmt.Sprintf(". Cleanup completed: %d resources removed", len(e.Cleanup.Deleted))
	default:
		msg += fmt.Sprintf(". Cleanup finished with %d errors: %v", len(e.Cleanup.Errors), e.Cleanup.Errors)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Stage is one step of the pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Deps collects everything the orchestrator is wired with.
type Deps struct {
	Selector      *selection.Engine
	Networks      *resource.VPCService
	Groups        *resource.SGService
	Filesystems   *resource.EFSService
	Identities    *resource.IAMService
	Instances     *resource.InstanceService
	LoadBalancers *resource.LBService
	Distributions *resource.CDNService
	Images        *resource.AMIResolver
	Prices        *pricing.Service
	Store         StateStore
	Cleaner       Cleaner
	Log           logr.Logger

	// SaveKeyMaterial persists a freshly created keypair's private key and
	// returns where it was written. Nil drops the material with a warning.
	SaveKeyMaterial func(stack, name, material string) (string, error)

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Orchestrator drives one deployment through the pipeline.
type Orchestrator struct {
	deps Deps
	log  logr.Logger
	now  func() time.Time
}

// New builds an Orchestrator.
func New(deps Deps) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{deps: deps, log: deps.Log, now: now}
}

// Deploy provisions the stack described by cfg and returns the saved final
// state. On failure after the checkpoint the returned error is an *Error
// carrying the cleanup result.
func (o *Orchestrator) Deploy(ctx context.Context, cfg api.DeploymentConfig) (*api.DeploymentState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Stage: "validate-config", Err: err}
	}
	if cfg.EnableCDN && !cfg.EnableLoadBalancer {
		return nil, &Error{Stage: "compose", Err: fmt.Errorf("the CDN requires the load balancer; enable it too")}
	}

	d := &deploy{o: o, cfg: cfg, st: api.NewDeploymentState(cfg)}
	timeout := time.Duration(cfg.RollbackTimeoutMinutes) * time.Minute
	deadline := o.now().Add(timeout)

	for _, stage := range d.stages() {
		if o.now().After(deadline) {
			return nil, o.fail(ctx, d, stage.Name,
				fmt.Errorf("deploy exceeded its %s budget before stage %q", timeout, stage.Name))
		}
		o.log.Info("Running deploy stage", "stack", cfg.StackName, "stage", stage.Name)
		if err := stage.Run(ctx); err != nil {
			return nil, o.fail(ctx, d, stage.Name, err)
		}
	}
	return d.st, nil
}

// fail routes a stage failure: before the checkpoint nothing durable exists
// and the error passes through; after it, either compensating cleanup runs
// (rollback enabled) or the record is marked failed.
func (o *Orchestrator) fail(ctx context.Context, d *deploy, stage string, err error) error {
	o.log.Error(err, "Deploy stage failed", "stack", d.cfg.StackName, "stage", stage)
	if !d.checkpointed {
		return &Error{Stage: stage, Err: err}
	}
	if d.cfg.RollbackEnabled {
		res := o.deps.Cleaner.Destroy(ctx, d.st, teardown.Options{})
		o.log.Info("Compensating cleanup finished", "stack", d.cfg.StackName,
			"deleted", len(res.Deleted), "errors", len(res.Errors))
		return &Error{Stage: stage, Err: err, Cleanup: res}
	}
	d.st.Status = api.StatusFailed
	d.st.Touch()
	if saveErr := o.deps.Store.Save(ctx, d.st); saveErr != nil {
		o.log.Error(saveErr, "Cannot record failed state", "stack", d.cfg.StackName)
	}
	return &Error{Stage: stage, Err: err}
}
