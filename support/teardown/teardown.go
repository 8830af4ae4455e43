// Package teardown destroys a deployment's resources in reverse-dependency
// order. Resources the deployment adopted rather than created are preserved,
// and per-step errors are collected so one stuck resource does not strand
// the rest.
package teardown

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/support/resource"
)

// StateStore is the slice of the state store teardown needs.
type StateStore interface {
	Archive(ctx context.Context, st *api.DeploymentState) (string, error)
	Delete(ctx context.Context, stack string) error
}

// Options steer one destruction run.
type Options struct {
	// DryRun skips every mutating call but still reports what would happen.
	DryRun bool
	// PreserveEFS keeps the filesystem and its mount targets regardless of
	// provenance.
	PreserveEFS bool
	// SkipArchive leaves the live record in place; the orchestrator's
	// rollback-disabled path uses it.
	SkipArchive bool
}

// Result summarises one destruction run.
type Result struct {
	Deleted      []string      `json:"deleted"`
	Preserved    []string      `json:"preserved"`
	Errors       []string      `json:"errors,omitempty"`
	ArchivedPath string        `json:"archived_path,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	DryRun       bool          `json:"dry_run,omitempty"`
}

// Success reports whether every step completed.
func (r *Result) Success() bool { return len(r.Errors) == 0 }

// Destroyer tears deployments down.
type Destroyer struct {
	instances     *resource.InstanceService
	filesystems   *resource.EFSService
	groups        *resource.SGService
	networks      *resource.VPCService
	loadBalancers *resource.LBService
	distributions *resource.CDNService
	identity      *resource.IAMService
	store         StateStore
	log           logr.Logger
}

// NewDestroyer wires a Destroyer from its dependencies.
func NewDestroyer(
	instances *resource.InstanceService,
	filesystems *resource.EFSService,
	groups *resource.SGService,
	networks *resource.VPCService,
	loadBalancers *resource.LBService,
	distributions *resource.CDNService,
	identity *resource.IAMService,
	store StateStore,
	log logr.Logger,
) *Destroyer {
	return &Destroyer{
		instances:     instances,
		filesystems:   filesystems,
		groups:        groups,
		networks:      networks,
		loadBalancers: loadBalancers,
		distributions: distributions,
		identity:      identity,
		store:         store,
		log:           log,
	}
}

// run is the bookkeeping for one destruction pass.
type run struct {
	d      *Destroyer
	opts   Options
	result *Result
}

// step executes one deletion. Reused resources are preserved, dry-run
// records intent without mutating, and errors are collected.
func (r *run) step(label string, reused bool, del func() error) {
	if reused {
		r.result.Preserved = append(r.result.Preserved, label)
		r.d.log.Info("Preserving reused resource", "resource", label)
		return
	}
	if r.opts.DryRun {
		r.result.Deleted = append(r.result.Deleted, label)
		return
	}
	if err := del(); err != nil {
		r.result.Errors = append(r.result.Errors, fmt.Sprintf("%s: %v", label, err))
		r.d.log.Error(err, "Deletion failed", "resource", label)
		return
	}
	r.result.Deleted = append(r.result.Deleted, label)
}

// Destroy removes every resource the deployment created, archives the final
// state and deletes the live record. The returned Result carries partial
// progress even when steps failed.
func (d *Destroyer) Destroy(ctx context.Context, st *api.DeploymentState, opts Options) *Result {
	start := time.Now()
	r := &run{d: d, opts: opts, result: &Result{DryRun: opts.DryRun}}
	prov := st.Provenance
	d.log.Info("Destroying deployment", "stack", st.StackName, "dryRun", opts.DryRun)

	if st.CDNDistributionID != "" {
		r.step("cloudfront:"+st.CDNDistributionID, prov.Reused(api.KindCDN), func() error {
			return d.distributions.Delete(ctx, st.CDNDistributionID)
		})
	}
	if st.LoadBalancerARN != "" || st.TargetGroupARN != "" {
		r.step("alb:"+st.LoadBalancerARN, prov.Reused(api.KindLoadBalancer), func() error {
			return d.loadBalancers.Delete(ctx, st.LoadBalancerARN, st.TargetGroupARN)
		})
	}
	if st.InstanceID != "" {
		r.step("instance:"+st.InstanceID, prov.Reused(api.KindInstance), func() error {
			return d.instances.Terminate(ctx, st.InstanceID)
		})
	}
	if st.KeypairName != "" {
		r.step("keypair:"+st.KeypairName, prov.Reused(api.KindKeypair), func() error {
			return d.instances.DeleteKeypair(ctx, st.KeypairName)
		})
	}
	if st.IAMRoleName != "" {
		r.step("iam:"+st.IAMRoleName, prov.Reused(api.KindIAM), func() error {
			return d.identity.DeleteInstanceIdentity(ctx, st.StackName)
		})
	}

	d.destroyFilesystem(ctx, r, st)

	if st.SecurityGroupID != "" {
		r.step("security-group:"+st.SecurityGroupID, prov.Reused(api.KindSecurityGroup), func() error {
			return d.groups.Delete(ctx, st.SecurityGroupID)
		})
	}
	d.destroyNetwork(ctx, r, st)

	if !opts.DryRun && !opts.SkipArchive {
		final := st.Snapshot()
		final.Status = api.StatusTerminated
		now := time.Now().UTC()
		final.TerminatedAt = &now
		final.Touch()
		if path, err := d.store.Archive(ctx, final); err != nil {
			r.result.Errors = append(r.result.Errors, fmt.Sprintf("archive: %v", err))
		} else {
			r.result.ArchivedPath = path
			if err := d.store.Delete(ctx, st.StackName); err != nil {
				r.result.Errors = append(r.result.Errors, fmt.Sprintf("delete record: %v", err))
			}
		}
	}

	r.result.Duration = time.Since(start)
	d.log.Info("Destruction finished", "stack", st.StackName,
		"deleted", len(r.result.Deleted), "preserved", len(r.result.Preserved), "errors", len(r.result.Errors))
	return r.result
}

// destroyFilesystem removes every mount target then the filesystem itself,
// falling back to the recorded mount target id when enumeration is empty.
func (d *Destroyer) destroyFilesystem(ctx context.Context, r *run, st *api.DeploymentState) {
	if st.EFSID == "" {
		return
	}
	reused := st.Provenance.Reused(api.KindEFS) || r.opts.PreserveEFS
	if reused {
		r.result.Preserved = append(r.result.Preserved, "efs:"+st.EFSID)
		d.log.Info("Preserving filesystem", "id", st.EFSID)
		return
	}

	mtIDs, err := d.filesystems.MountTargetIDs(ctx, st.EFSID)
	if err != nil || len(mtIDs) == 0 {
		if st.MountTargetID != "" {
			mtIDs = []string{st.MountTargetID}
		}
	}
	for _, mtID := range mtIDs {
		id := mtID
		r.step("mount-target:"+id, false, func() error {
			return d.filesystems.DeleteMountTarget(ctx, id)
		})
	}
	r.step("efs:"+st.EFSID, false, func() error {
		return d.filesystems.Delete(ctx, st.EFSID)
	})
}

// destroyNetwork removes the subnets, their blocking dependencies and the
// VPC when this tool created them.
func (d *Destroyer) destroyNetwork(ctx context.Context, r *run, st *api.DeploymentState) {
	if st.VPCID == "" {
		return
	}
	if st.Provenance.Reused(api.KindVPC) {
		r.result.Preserved = append(r.result.Preserved, "vpc:"+st.VPCID)
		return
	}
	for _, subnetID := range st.SubnetIDs {
		id := subnetID
		r.step("subnet:"+id, st.Provenance.Reused(api.KindSubnets), func() error {
			return d.networks.DeleteSubnet(ctx, id)
		})
	}
	r.step("vpc:"+st.VPCID, false, func() error {
		if err := d.networks.DeleteNetworkDependencies(ctx, st.VPCID); err != nil {
			return err
		}
		return d.networks.DeleteVPC(ctx, st.VPCID)
	})
}
