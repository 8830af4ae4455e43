// Package cleanup discovers and removes orphaned provider resources: anything
// carrying the tool's tag keys whose stack no longer has a local record.
// Deletion is best-effort per resource, and dry-run reports without mutating.
package cleanup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	taggingapi "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	taggingtypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
	"github.com/geusemaker/geusemaker/support/resource"
)

// Kind classifies an orphaned resource.
type Kind string

const (
	KindInstance      Kind = "instance"
	KindFilesystem    Kind = "filesystem"
	KindVPC           Kind = "vpc"
	KindSecurityGroup Kind = "security-group"
)

// Fixed monthly cost figures per orphan kind. Network resources are free to
// keep, so only compute and storage contribute to the savings estimate.
const (
	monthlyCostInstance   = 25.0
	monthlyCostFilesystem = 5.0
)

func monthlyCost(kind Kind) float64 {
	switch kind {
	case KindInstance:
		return monthlyCostInstance
	case KindFilesystem:
		return monthlyCostFilesystem
	default:
		return 0
	}
}

// Orphan is one tagged resource without a matching local record.
type Orphan struct {
	Kind        Kind    `json:"kind"`
	ID          string  `json:"id"`
	ARN         string  `json:"arn"`
	Stack       string  `json:"stack"`
	MonthlyCost float64 `json:"monthly_cost"`
}

// Report summarises one cleanup run.
type Report struct {
	Region                  string        `json:"region"`
	ActiveStacks            []string      `json:"active_stacks"`
	Orphans                 []Orphan      `json:"orphans"`
	OrphansFound            int           `json:"orphans_found"`
	OrphansDeleted          int           `json:"orphans_deleted"`
	OrphansPreserved        int           `json:"orphans_preserved"`
	Deleted                 []string      `json:"deleted,omitempty"`
	Errors                  []string      `json:"errors,omitempty"`
	EstimatedMonthlySavings float64       `json:"estimated_monthly_savings"`
	DryRun                  bool          `json:"dry_run,omitempty"`
	Duration                time.Duration `json:"duration_ns"`
}

// Success reports whether every deletion completed.
func (r *Report) Success() bool { return len(r.Errors) == 0 }

// StateIndex is the slice of the state store cleanup needs.
type StateIndex interface {
	List(ctx context.Context) ([]string, error)
}

// Options steer one cleanup run.
type Options struct {
	// DryRun reports orphans without deleting anything.
	DryRun bool
	// Stacks, when non-empty, restricts cleanup to orphans tagged with one
	// of these stack names.
	Stacks []string
}

// Cleaner finds and removes orphans in one region.
type Cleaner struct {
	region      string
	tagging     awsapi.TaggingAPI
	instances   *resource.InstanceService
	filesystems *resource.EFSService
	groups      *resource.SGService
	networks    *resource.VPCService
	index       StateIndex
	log         logr.Logger
}

// New wires a Cleaner from its dependencies.
func New(
	region string,
	tagging awsapi.TaggingAPI,
	instances *resource.InstanceService,
	filesystems *resource.EFSService,
	groups *resource.SGService,
	networks *resource.VPCService,
	index StateIndex,
	log logr.Logger,
) *Cleaner {
	return &Cleaner{
		region:      region,
		tagging:     tagging,
		instances:   instances,
		filesystems: filesystems,
		groups:      groups,
		networks:    networks,
		index:       index,
		log:         log,
	}
}

// Run discovers orphans and, unless dry-run, deletes them. The report
// carries partial progress even when deletions failed.
func (c *Cleaner) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	active, err := c.index.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot list local records: %w", err)
	}
	orphans, err := c.Discover(ctx, active, opts.Stacks)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Region:       c.region,
		ActiveStacks: active,
		Orphans:      orphans,
		OrphansFound: len(orphans),
		DryRun:       opts.DryRun,
	}
	if opts.DryRun {
		report.OrphansPreserved = len(orphans)
		report.Duration = time.Since(start)
		return report, nil
	}

	for _, o := range orphans {
		label := fmt.Sprintf("%s:%s", o.Kind, o.ID)
		if err := c.delete(ctx, o); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", label, err))
			c.log.Error(err, "Orphan deletion failed", "kind", string(o.Kind), "id", o.ID, "stack", o.Stack)
			continue
		}
		report.Deleted = append(report.Deleted, label)
		report.OrphansDeleted++
		report.EstimatedMonthlySavings += o.MonthlyCost
		c.log.Info("Deleted orphan", "kind", string(o.Kind), "id", o.ID, "stack", o.Stack)
	}
	report.OrphansPreserved = report.OrphansFound - report.OrphansDeleted
	report.Duration = time.Since(start)
	return report, nil
}

// Discover enumerates tagged resources and returns those whose stack has no
// local record. The result is ordered instances first so compute stops
// billing before its network is touched.
func (c *Cleaner) Discover(ctx context.Context, activeStacks, onlyStacks []string) ([]Orphan, error) {
	active := map[string]bool{}
	for _, s := range activeStacks {
		active[s] = true
	}
	only := map[string]bool{}
	for _, s := range onlyStacks {
		only[s] = true
	}

	// The tagging API ANDs its filters, so each discovery key gets its own
	// query; seen dedupes resources carrying both.
	seen := map[string]bool{}
	var orphans []Orphan
	for _, key := range []string{awsutil.TagDeployment, awsutil.TagStack} {
		var token *string
		for {
			out, err := c.tagging.GetResources(ctx, &taggingapi.GetResourcesInput{
				TagFilters:      []taggingtypes.TagFilter{{Key: aws.String(key)}},
				PaginationToken: token,
			})
			if err != nil {
				return nil, awsutil.WrapProvider(fmt.Sprintf("enumerate resources tagged %s", key), err)
			}
			for _, mapping := range out.ResourceTagMappingList {
				arn := aws.ToString(mapping.ResourceARN)
				kind, id, ok := parseARN(arn)
				if !ok || seen[arn] {
					continue
				}
				seen[arn] = true
				stack := stackOf(mapping)
				if stack == "" || active[stack] {
					continue
				}
				if len(only) > 0 && !only[stack] {
					continue
				}
				orphans = append(orphans, Orphan{
					Kind: kind, ID: id, ARN: arn, Stack: stack,
					MonthlyCost: monthlyCost(kind),
				})
			}
			token = out.PaginationToken
			if aws.ToString(token) == "" {
				break
			}
		}
	}

	sort.SliceStable(orphans, func(i, j int) bool {
		return kindRank(orphans[i].Kind) < kindRank(orphans[j].Kind)
	})
	return orphans, nil
}

// kindRank orders deletion: compute, then storage, then security groups,
// then networks, mirroring the dependency order of teardown.
func kindRank(k Kind) int {
	switch k {
	case KindInstance:
		return 0
	case KindFilesystem:
		return 1
	case KindSecurityGroup:
		return 2
	case KindVPC:
		return 3
	default:
		return 4
	}
}

func (c *Cleaner) delete(ctx context.Context, o Orphan) error {
	switch o.Kind {
	case KindInstance:
		return c.instances.Terminate(ctx, o.ID)
	case KindFilesystem:
		return c.deleteFilesystem(ctx, o.ID)
	case KindSecurityGroup:
		return c.groups.Delete(ctx, o.ID)
	case KindVPC:
		return c.deleteNetwork(ctx, o.ID)
	default:
		return fmt.Errorf("unknown resource kind %q", o.Kind)
	}
}

func (c *Cleaner) deleteFilesystem(ctx context.Context, fsID string) error {
	mtIDs, err := c.filesystems.MountTargetIDs(ctx, fsID)
	if err != nil {
		return err
	}
	for _, mtID := range mtIDs {
		if err := c.filesystems.DeleteMountTarget(ctx, mtID); err != nil {
			return err
		}
	}
	return c.filesystems.Delete(ctx, fsID)
}

// deleteNetwork clears subnets and blocking dependencies before the VPC;
// no record names the subnets, so they are enumerated live.
func (c *Cleaner) deleteNetwork(ctx context.Context, vpcID string) error {
	subnetIDs, err := c.networks.SubnetsOf(ctx, vpcID)
	if err != nil {
		return err
	}
	for _, subnetID := range subnetIDs {
		if err := c.networks.DeleteSubnet(ctx, subnetID); err != nil {
			return err
		}
	}
	if err := c.networks.DeleteNetworkDependencies(ctx, vpcID); err != nil {
		return err
	}
	return c.networks.DeleteVPC(ctx, vpcID)
}

// stackOf extracts the owning stack name from a resource's tags, preferring
// the namespaced key.
func stackOf(mapping taggingtypes.ResourceTagMapping) string {
	byKey := map[string]string{}
	for _, tag := range mapping.Tags {
		byKey[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	if v := byKey[awsutil.TagDeployment]; v != "" {
		return v
	}
	return byKey[awsutil.TagStack]
}

// parseARN maps a resource ARN to a cleanup kind and bare id. Kinds the
// cleaner does not manage return ok=false.
func parseARN(arn string) (Kind, string, bool) {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) != 6 {
		return "", "", false
	}
	service, rest := parts[2], parts[5]
	typ, id, found := strings.Cut(rest, "/")
	if !found {
		return "", "", false
	}
	switch {
	case service == "ec2" && typ == "instance":
		return KindInstance, id, true
	case service == "ec2" && typ == "vpc":
		return KindVPC, id, true
	case service == "ec2" && typ == "security-group":
		return KindSecurityGroup, id, true
	case service == "elasticfilesystem" && typ == "file-system":
		return KindFilesystem, id, true
	default:
		return "", "", false
	}
}
