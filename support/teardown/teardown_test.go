package teardown

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/log"
	"github.com/geusemaker/geusemaker/support/awsapi/fake"
	"github.com/geusemaker/geusemaker/support/resource"
)

type memStore struct {
	archived *api.DeploymentState
	path     string
	deleted  []string
}

func (m *memStore) Archive(_ context.Context, st *api.DeploymentState) (string, error) {
	m.archived = st
	m.path = "/state/archive/" + st.StackName + "-1700000000.json"
	return m.path, nil
}

func (m *memStore) Delete(_ context.Context, stack string) error {
	m.deleted = append(m.deleted, stack)
	return nil
}

type destroyFixture struct {
	d     *Destroyer
	store *memStore
	calls *[]string
}

func newDestroyFixture(t *testing.T) *destroyFixture {
	t.Helper()
	var calls []string
	record := func(name string) { calls = append(calls, name) }

	ec2Client := &fake.EC2{
		TerminateInstancesFn: func(context.Context, *ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error) {
			record("terminate-instance")
			return &ec2.TerminateInstancesOutput{}, nil
		},
		DescribeInstancesFn: func(context.Context, *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return nil, fake.APIError("InvalidInstanceID.NotFound", "gone")
		},
		DeleteSecurityGroupFn: func(context.Context, *ec2.DeleteSecurityGroupInput) (*ec2.DeleteSecurityGroupOutput, error) {
			record("delete-sg")
			return &ec2.DeleteSecurityGroupOutput{}, nil
		},
		DeleteSubnetFn: func(_ context.Context, in *ec2.DeleteSubnetInput) (*ec2.DeleteSubnetOutput, error) {
			record("delete-subnet:" + aws.ToString(in.SubnetId))
			return &ec2.DeleteSubnetOutput{}, nil
		},
		DescribeNetworkInterfacesFn: func(context.Context, *ec2.DescribeNetworkInterfacesInput) (*ec2.DescribeNetworkInterfacesOutput, error) {
			return &ec2.DescribeNetworkInterfacesOutput{}, nil
		},
		DescribeInternetGatewaysFn: func(context.Context, *ec2.DescribeInternetGatewaysInput) (*ec2.DescribeInternetGatewaysOutput, error) {
			return &ec2.DescribeInternetGatewaysOutput{}, nil
		},
		DescribeRouteTablesFn: func(context.Context, *ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error) {
			return &ec2.DescribeRouteTablesOutput{}, nil
		},
		DeleteVpcFn: func(context.Context, *ec2.DeleteVpcInput) (*ec2.DeleteVpcOutput, error) {
			record("delete-vpc")
			return &ec2.DeleteVpcOutput{}, nil
		},
	}
	efsClient := &fake.EFS{
		DescribeMountTargetsFn: func(_ context.Context, in *efs.DescribeMountTargetsInput) (*efs.DescribeMountTargetsOutput, error) {
			return nil, fake.APIError("MountTargetNotFound", "gone")
		},
		DeleteMountTargetFn: func(context.Context, *efs.DeleteMountTargetInput) (*efs.DeleteMountTargetOutput, error) {
			record("delete-mount-target")
			return &efs.DeleteMountTargetOutput{}, nil
		},
		DeleteFileSystemFn: func(context.Context, *efs.DeleteFileSystemInput) (*efs.DeleteFileSystemOutput, error) {
			record("delete-efs")
			return &efs.DeleteFileSystemOutput{}, nil
		},
	}
	elbClient := &fake.ELBV2{
		DeleteLoadBalancerFn: func(context.Context, *elbv2.DeleteLoadBalancerInput) (*elbv2.DeleteLoadBalancerOutput, error) {
			record("delete-alb")
			return &elbv2.DeleteLoadBalancerOutput{}, nil
		},
		DeleteTargetGroupFn: func(context.Context, *elbv2.DeleteTargetGroupInput) (*elbv2.DeleteTargetGroupOutput, error) {
			record("delete-tg")
			return &elbv2.DeleteTargetGroupOutput{}, nil
		},
	}
	iamClient := &fake.IAM{
		RemoveRoleFromInstanceProfileFn: func(context.Context, *iam.RemoveRoleFromInstanceProfileInput) (*iam.RemoveRoleFromInstanceProfileOutput, error) {
			return &iam.RemoveRoleFromInstanceProfileOutput{}, nil
		},
		DeleteInstanceProfileFn: func(context.Context, *iam.DeleteInstanceProfileInput) (*iam.DeleteInstanceProfileOutput, error) {
			return &iam.DeleteInstanceProfileOutput{}, nil
		},
		DeleteRolePolicyFn: func(context.Context, *iam.DeleteRolePolicyInput) (*iam.DeleteRolePolicyOutput, error) {
			return &iam.DeleteRolePolicyOutput{}, nil
		},
		DeleteRoleFn: func(context.Context, *iam.DeleteRoleInput) (*iam.DeleteRoleOutput, error) {
			record("delete-iam")
			return &iam.DeleteRoleOutput{}, nil
		},
	}

	lg := log.Discard()
	store := &memStore{}
	d := NewDestroyer(
		resource.NewInstanceService(ec2Client, lg),
		resource.NewEFSService(efsClient, lg),
		resource.NewSGService(ec2Client, lg),
		resource.NewVPCService(ec2Client, lg),
		resource.NewLBService(elbClient, lg),
		resource.NewCDNService(&fake.CloudFront{}, lg),
		resource.NewIAMService(iamClient, lg),
		store,
		lg,
	)
	return &destroyFixture{d: d, store: store, calls: &calls}
}

func createdState() *api.DeploymentState {
	cfg := api.DefaultConfig()
	cfg.StackName = "demo"
	cfg.Tier = api.TierDev
	cfg.Region = "us-east-1"
	st := api.NewDeploymentState(cfg)
	st.Status = api.StatusRunning
	st.VPCID = "vpc-1"
	st.SubnetIDs = []string{"subnet-a", "subnet-b"}
	st.SecurityGroupID = "sg-1"
	st.EFSID = "fs-1"
	st.MountTargetID = "fsmt-1"
	st.IAMRoleName = "demo-instance-role"
	st.InstanceProfile = "demo-instance-profile"
	st.InstanceID = "i-1"
	for _, k := range []api.ResourceKind{
		api.KindVPC, api.KindSubnets, api.KindSecurityGroup,
		api.KindEFS, api.KindInstance, api.KindIAM,
	} {
		st.Provenance.Mark(k, api.ProvenanceCreated)
	}
	return st
}

func TestDestroyCreatedStack(t *testing.T) {
	f := newDestroyFixture(t)
	st := createdState()

	res := f.d.Destroy(context.Background(), st, Options{})
	require.True(t, res.Success(), "errors: %v", res.Errors)

	// Reverse-dependency order: compute before storage before network.
	assert.Equal(t, []string{
		"terminate-instance", "delete-iam", "delete-mount-target",
		"delete-efs", "delete-sg",
		"delete-subnet:subnet-a", "delete-subnet:subnet-b", "delete-vpc",
	}, *f.calls)

	assert.Empty(t, res.Preserved)
	assert.Equal(t, f.store.path, res.ArchivedPath)
	require.NotNil(t, f.store.archived)
	assert.Equal(t, api.StatusTerminated, f.store.archived.Status)
	assert.NotNil(t, f.store.archived.TerminatedAt)
	assert.Equal(t, []string{"demo"}, f.store.deleted)
}

func TestDestroyPreservesReused(t *testing.T) {
	f := newDestroyFixture(t)
	st := createdState()
	st.Provenance.Mark(api.KindVPC, api.ProvenanceReused)
	st.Provenance.Mark(api.KindSecurityGroup, api.ProvenanceReused)
	st.Provenance.Mark(api.KindEFS, api.ProvenanceReused)

	res := f.d.Destroy(context.Background(), st, Options{})
	require.True(t, res.Success(), "errors: %v", res.Errors)
	assert.ElementsMatch(t, []string{"vpc:vpc-1", "security-group:sg-1", "efs:fs-1"}, res.Preserved)
	assert.Equal(t, []string{"terminate-instance", "delete-iam"}, *f.calls)

	// Idempotence: a second destroy still only preserves the reused set.
	res = f.d.Destroy(context.Background(), st, Options{})
	assert.ElementsMatch(t, []string{"vpc:vpc-1", "security-group:sg-1", "efs:fs-1"}, res.Preserved)
	assert.NotContains(t, res.Deleted, "vpc:vpc-1")
}

func TestDestroyPreserveEFSFlag(t *testing.T) {
	f := newDestroyFixture(t)
	st := createdState()

	res := f.d.Destroy(context.Background(), st, Options{PreserveEFS: true})
	require.True(t, res.Success(), "errors: %v", res.Errors)
	assert.Contains(t, res.Preserved, "efs:fs-1")
	assert.NotContains(t, *f.calls, "delete-efs")
	assert.NotContains(t, *f.calls, "delete-mount-target")
}

func TestDestroyDryRun(t *testing.T) {
	lg := log.Discard()
	store := &memStore{}
	// Unconfigured fakes fail loudly on any call; dry-run must never reach
	// the provider except for read-only mount target enumeration.
	efsClient := &fake.EFS{
		DescribeMountTargetsFn: func(context.Context, *efs.DescribeMountTargetsInput) (*efs.DescribeMountTargetsOutput, error) {
			return &efs.DescribeMountTargetsOutput{}, nil
		},
	}
	d := NewDestroyer(
		resource.NewInstanceService(&fake.EC2{}, lg),
		resource.NewEFSService(efsClient, lg),
		resource.NewSGService(&fake.EC2{}, lg),
		resource.NewVPCService(&fake.EC2{}, lg),
		resource.NewLBService(&fake.ELBV2{}, lg),
		resource.NewCDNService(&fake.CloudFront{}, lg),
		resource.NewIAMService(&fake.IAM{}, lg),
		store,
		lg,
	)
	st := createdState()

	res := d.Destroy(context.Background(), st, Options{DryRun: true})
	require.True(t, res.Success(), "errors: %v", res.Errors)
	assert.True(t, res.DryRun)
	assert.Contains(t, res.Deleted, "instance:i-1")
	assert.Contains(t, res.Deleted, "efs:fs-1")
	assert.Contains(t, res.Deleted, "vpc:vpc-1")
	assert.Nil(t, store.archived)
	assert.Empty(t, store.deleted)
}

func TestDestroyCollectsErrors(t *testing.T) {
	f := newDestroyFixture(t)
	st := createdState()

	// Swap the filesystem deletion for a failing one.
	failEFS := &fake.EFS{
		DescribeMountTargetsFn: func(context.Context, *efs.DescribeMountTargetsInput) (*efs.DescribeMountTargetsOutput, error) {
			return &efs.DescribeMountTargetsOutput{}, nil
		},
		DeleteMountTargetFn: func(context.Context, *efs.DeleteMountTargetInput) (*efs.DeleteMountTargetOutput, error) {
			return nil, fake.APIError("MountTargetNotFound", "gone")
		},
		DeleteFileSystemFn: func(context.Context, *efs.DeleteFileSystemInput) (*efs.DeleteFileSystemOutput, error) {
			return nil, fake.APIError("FileSystemInUse", "mount targets still attached")
		},
	}
	f.d.filesystems = resource.NewEFSService(failEFS, log.Discard())

	res := f.d.Destroy(context.Background(), st, Options{})
	require.False(t, res.Success())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "efs:fs-1")
	// Later steps still ran.
	assert.Contains(t, *f.calls, "delete-sg")
	assert.Contains(t, *f.calls, "delete-vpc")
}
