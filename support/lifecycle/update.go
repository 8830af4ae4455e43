// Package lifecycle applies in-place changes to a running deployment:
// instance resizing, container image rollouts, and rollback to a prior
// snapshot. Every mutation snapshots the current state first so rollback
// always has a target.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/support/pricing"
	"github.com/geusemaker/geusemaker/support/resource"
)

// StateStore is the slice of the state store lifecycle operations need.
type StateStore interface {
	Save(ctx context.Context, st *api.DeploymentState) error
}

// Updater applies updates and rollbacks to one deployment.
type Updater struct {
	instances *resource.InstanceService
	prices    *pricing.Service
	runner    *CommandRunner
	store     StateStore
	log       logr.Logger
}

// NewUpdater wires an Updater from its dependencies.
func NewUpdater(instances *resource.InstanceService, prices *pricing.Service, runner *CommandRunner, store StateStore, log logr.Logger) *Updater {
	return &Updater{instances: instances, prices: prices, runner: runner, store: store, log: log}
}

// UpdateOptions describes one in-place update. At least one field must be
// set.
type UpdateOptions struct {
	// InstanceType resizes the instance when non-empty.
	InstanceType string
	// Images maps service names to new container image references.
	Images map[string]string
}

func (o UpdateOptions) validate(st *api.DeploymentState) error {
	if o.InstanceType == "" && len(o.Images) == 0 {
		return fmt.Errorf("nothing to update: specify an instance type or at least one image")
	}
	if st.EFSID == "" {
		// Without the shared filesystem a restart loses service data.
		return fmt.Errorf("stack %s has no filesystem, updating would lose data", st.StackName)
	}
	for name, ref := range o.Images {
		if name == "" || ref == "" {
			return fmt.Errorf("image overrides need a service name and a reference, got %q=%q", name, ref)
		}
	}
	return nil
}

// Update snapshots st, applies opts and persists the result. On failure the
// status stays updating so the caller can decide between retry and rollback.
func (u *Updater) Update(ctx context.Context, st *api.DeploymentState, opts UpdateOptions) error {
	if err := opts.validate(st); err != nil {
		return err
	}

	st.PushSnapshot(st.Snapshot())
	st.Status = api.StatusUpdating
	st.Touch()
	if err := u.store.Save(ctx, st); err != nil {
		return fmt.Errorf("cannot persist updating state: %w", err)
	}

	if opts.InstanceType != "" && opts.InstanceType != st.Config.InstanceType {
		if err := u.resize(ctx, st, opts.InstanceType); err != nil {
			u.persistAfterFailure(ctx, st)
			return err
		}
	}
	if len(opts.Images) > 0 {
		if err := u.rolloutImages(ctx, st, opts.Images); err != nil {
			u.persistAfterFailure(ctx, st)
			return err
		}
	}

	st.Status = api.StatusRunning
	st.Touch()
	if err := u.store.Save(ctx, st); err != nil {
		return fmt.Errorf("cannot persist updated state: %w", err)
	}
	u.log.Info("Update finished", "stack", st.StackName,
		"instanceType", st.Config.InstanceType, "images", len(opts.Images))
	return nil
}

// persistAfterFailure records whatever partial progress the update made; the
// status stays updating on purpose.
func (u *Updater) persistAfterFailure(ctx context.Context, st *api.DeploymentState) {
	st.Touch()
	if err := u.store.Save(ctx, st); err != nil {
		u.log.Error(err, "Cannot persist state after failed update", "stack", st.StackName)
	}
}

// resize stops the instance, rewrites its type and boots it again, then
// refreshes the cost record. A resized instance runs on-demand: one-time
// spot capacity does not survive a stop.
func (u *Updater) resize(ctx context.Context, st *api.DeploymentState, instanceType string) error {
	u.log.Info("Resizing instance", "stack", st.StackName, "from", st.Config.InstanceType, "to", instanceType)
	if err := u.instances.Stop(ctx, st.InstanceID); err != nil {
		return err
	}
	if err := u.instances.ChangeType(ctx, st.InstanceID, instanceType); err != nil {
		return err
	}
	if err := u.instances.Start(ctx, st.InstanceID); err != nil {
		return err
	}

	st.Config.InstanceType = instanceType
	hourly := u.prices.OnDemandHourly(ctx, instanceType)
	st.CostTracking = u.prices.EstimateMonthly(ctx, st.Config, hourly.Price, false, 0, hourly.Price, hourly.Source)

	// A stop/start cycle can move the public address.
	inst, err := u.instances.Describe(ctx, st.InstanceID)
	if err != nil {
		return err
	}
	st.PublicIP = inst.PublicIP
	st.PrivateIP = inst.PrivateIP
	st.N8NURL = st.PrimaryServiceURL()
	return nil
}

// rolloutImages pushes the new image set to the instance and records it in
// the state once the remote script succeeds.
func (u *Updater) rolloutImages(ctx context.Context, st *api.DeploymentState, images map[string]string) error {
	u.log.Info("Rolling out images", "stack", st.StackName, "count", len(images))
	if _, err := u.runner.Run(ctx, st.InstanceID, rolloutScript(images)); err != nil {
		return fmt.Errorf("image rollout failed: %w", err)
	}
	if st.ContainerImages == nil {
		st.ContainerImages = map[string]string{}
	}
	for name, ref := range images {
		st.ContainerImages[name] = ref
	}
	return nil
}

// rolloutScript compiles the shell script that rewrites the compose file's
// image fields, pulls the new images in parallel with one log per image, and
// restarts the services.
func rolloutScript(images map[string]string) string {
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\nset -euo pipefail\ncd /opt/geusemaker\n")
	for _, name := range names {
		// Rewrite the image line inside the service's block; services are
		// indented two spaces in the generated compose file.
		fmt.Fprintf(&b, "sed -i '/^  %s:$/,/^  [a-z]/ s|^\\(    image: \\).*|\\1%s|' docker-compose.yml\n", name, images[name])
	}
	b.WriteString("pids=()\n")
	for _, name := range names {
		fmt.Fprintf(&b, "docker pull %q >/tmp/geusemaker-pull-%s.log 2>&1 &\npids+=($!)\n", images[name], name)
	}
	b.WriteString("fail=0\nfor pid in \"${pids[@]}\"; do wait \"$pid\" || fail=1; done\n")
	b.WriteString("if [ \"$fail\" -ne 0 ]; then cat /tmp/geusemaker-pull-*.log; exit 1; fi\n")
	b.WriteString("docker-compose --env-file .env up -d\n")
	return b.String()
}
