package cleanup

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	taggingapi "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	taggingtypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geusemaker/geusemaker/cmd/log"
	"github.com/geusemaker/geusemaker/support/awsapi/fake"
	"github.com/geusemaker/geusemaker/support/awsutil"
	"github.com/geusemaker/geusemaker/support/resource"
)

type memIndex struct {
	stacks []string
}

func (m *memIndex) List(context.Context) ([]string, error) { return m.stacks, nil }

func tagged(arn, stack string) taggingtypes.ResourceTagMapping {
	return taggingtypes.ResourceTagMapping{
		ResourceARN: aws.String(arn),
		Tags: []taggingtypes.Tag{
			{Key: aws.String(awsutil.TagStack), Value: aws.String(stack)},
		},
	}
}

// cleanupFixture wires a Cleaner over fakes and returns the recorders the
// tests assert against.
type cleanupFixture struct {
	cleaner    *Cleaner
	terminated *[]string
	deletedFS  *[]string
	deletedSG  *[]string
	deletedVPC *[]string
}

func newCleanupFixture(t *testing.T, mappings []taggingtypes.ResourceTagMapping, active []string) *cleanupFixture {
	t.Helper()
	var terminated, deletedFS, deletedSG, deletedVPC []string

	tagging := &fake.Tagging{
		GetResourcesFn: func(_ context.Context, in *taggingapi.GetResourcesInput) (*taggingapi.GetResourcesOutput, error) {
			// Both discovery keys see the same tagged set; dedupe is the
			// cleaner's job.
			return &taggingapi.GetResourcesOutput{ResourceTagMappingList: mappings}, nil
		},
	}
	ec2Fake := &fake.EC2{
		TerminateInstancesFn: func(_ context.Context, in *ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error) {
			terminated = append(terminated, in.InstanceIds...)
			return &ec2.TerminateInstancesOutput{}, nil
		},
		DescribeInstancesFn: func(_ context.Context, in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{
				Instances: []ec2types.Instance{{
					InstanceId: aws.String(in.InstanceIds[0]),
					State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameTerminated},
				}},
			}}}, nil
		},
		DeleteSecurityGroupFn: func(_ context.Context, in *ec2.DeleteSecurityGroupInput) (*ec2.DeleteSecurityGroupOutput, error) {
			deletedSG = append(deletedSG, aws.ToString(in.GroupId))
			return &ec2.DeleteSecurityGroupOutput{}, nil
		},
		DescribeSubnetsFn: func(_ context.Context, _ *ec2.DescribeSubnetsInput) (*ec2.DescribeSubnetsOutput, error) {
			return &ec2.DescribeSubnetsOutput{Subnets: []ec2types.Subnet{
				{SubnetId: aws.String("subnet-ghost-a")},
				{SubnetId: aws.String("subnet-ghost-b")},
			}}, nil
		},
		DeleteSubnetFn: func(_ context.Context, _ *ec2.DeleteSubnetInput) (*ec2.DeleteSubnetOutput, error) {
			return &ec2.DeleteSubnetOutput{}, nil
		},
		DescribeNetworkInterfacesFn: func(_ context.Context, _ *ec2.DescribeNetworkInterfacesInput) (*ec2.DescribeNetworkInterfacesOutput, error) {
			return &ec2.DescribeNetworkInterfacesOutput{}, nil
		},
		DescribeInternetGatewaysFn: func(_ context.Context, _ *ec2.DescribeInternetGatewaysInput) (*ec2.DescribeInternetGatewaysOutput, error) {
			return &ec2.DescribeInternetGatewaysOutput{}, nil
		},
		DescribeRouteTablesFn: func(_ context.Context, _ *ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error) {
			return &ec2.DescribeRouteTablesOutput{}, nil
		},
		DeleteVpcFn: func(_ context.Context, in *ec2.DeleteVpcInput) (*ec2.DeleteVpcOutput, error) {
			deletedVPC = append(deletedVPC, aws.ToString(in.VpcId))
			return &ec2.DeleteVpcOutput{}, nil
		},
	}
	efsFake := &fake.EFS{
		DescribeMountTargetsFn: func(_ context.Context, in *efs.DescribeMountTargetsInput) (*efs.DescribeMountTargetsOutput, error) {
			if aws.ToString(in.MountTargetId) != "" {
				return nil, fake.APIError("MountTargetNotFound", "gone")
			}
			return &efs.DescribeMountTargetsOutput{MountTargets: []efstypes.MountTargetDescription{
				{MountTargetId: aws.String("fsmt-ghost")},
			}}, nil
		},
		DeleteMountTargetFn: func(_ context.Context, _ *efs.DeleteMountTargetInput) (*efs.DeleteMountTargetOutput, error) {
			return &efs.DeleteMountTargetOutput{}, nil
		},
		DeleteFileSystemFn: func(_ context.Context, in *efs.DeleteFileSystemInput) (*efs.DeleteFileSystemOutput, error) {
			deletedFS = append(deletedFS, aws.ToString(in.FileSystemId))
			return &efs.DeleteFileSystemOutput{}, nil
		},
	}

	lg := log.Discard()
	cleaner := New("us-east-1", tagging,
		resource.NewInstanceService(ec2Fake, lg),
		resource.NewEFSService(efsFake, lg),
		resource.NewSGService(ec2Fake, lg),
		resource.NewVPCService(ec2Fake, lg),
		&memIndex{stacks: active}, lg)
	return &cleanupFixture{
		cleaner:    cleaner,
		terminated: &terminated,
		deletedFS:  &deletedFS,
		deletedSG:  &deletedSG,
		deletedVPC: &deletedVPC,
	}
}

func ghostMappings() []taggingtypes.ResourceTagMapping {
	return []taggingtypes.ResourceTagMapping{
		tagged("arn:aws:ec2:us-east-1:123456789012:instance/i-active", "active"),
		tagged("arn:aws:ec2:us-east-1:123456789012:instance/i-ghost", "ghost"),
		tagged("arn:aws:elasticfilesystem:us-east-1:123456789012:file-system/fs-ghost", "ghost"),
	}
}

func TestCleanupDryRun(t *testing.T) {
	f := newCleanupFixture(t, ghostMappings(), []string{"active"})

	report, err := f.cleaner.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, report.OrphansFound)
	assert.Equal(t, 0, report.OrphansDeleted)
	assert.Equal(t, 2, report.OrphansPreserved)
	assert.Zero(t, report.EstimatedMonthlySavings)
	assert.True(t, report.DryRun)
	assert.True(t, report.Success())
	assert.Empty(t, *f.terminated)
	assert.Empty(t, *f.deletedFS)
}

func TestCleanupDeletesOrphans(t *testing.T) {
	f := newCleanupFixture(t, ghostMappings(), []string{"active"})

	report, err := f.cleaner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.OrphansFound)
	assert.Equal(t, 2, report.OrphansDeleted)
	assert.Equal(t, 0, report.OrphansPreserved)
	assert.Equal(t, 30.0, report.EstimatedMonthlySavings)
	assert.True(t, report.Success())

	// The active stack's instance is untouched.
	assert.Equal(t, []string{"i-ghost"}, *f.terminated)
	assert.Equal(t, []string{"fs-ghost"}, *f.deletedFS)
	// Compute goes before storage.
	assert.Equal(t, []string{"instance:i-ghost", "filesystem:fs-ghost"}, report.Deleted)
}

func TestCleanupCollectsDeletionErrors(t *testing.T) {
	f := newCleanupFixture(t, ghostMappings(), []string{"active"})
	// Rewire termination to fail; the filesystem should still be removed.
	broken := &fake.EC2{
		TerminateInstancesFn: func(context.Context, *ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error) {
			return nil, fake.APIError("UnauthorizedOperation", "denied")
		},
	}
	f.cleaner.instances = resource.NewInstanceService(broken, log.Discard())

	report, err := f.cleaner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.OrphansFound)
	assert.Equal(t, 1, report.OrphansDeleted)
	assert.Equal(t, 1, report.OrphansPreserved)
	assert.Equal(t, 5.0, report.EstimatedMonthlySavings)
	assert.False(t, report.Success())
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "instance:i-ghost")
	assert.Equal(t, []string{"filesystem:fs-ghost"}, *f.deletedFS)
}

func TestCleanupDeletesOrphanedNetwork(t *testing.T) {
	mappings := []taggingtypes.ResourceTagMapping{
		tagged("arn:aws:ec2:us-east-1:123456789012:vpc/vpc-ghost", "ghost"),
		tagged("arn:aws:ec2:us-east-1:123456789012:security-group/sg-ghost", "ghost"),
	}
	f := newCleanupFixture(t, mappings, nil)

	report, err := f.cleaner.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.OrphansDeleted)
	assert.Zero(t, report.EstimatedMonthlySavings)
	assert.Equal(t, []string{"sg-ghost"}, *f.deletedSG)
	assert.Equal(t, []string{"vpc-ghost"}, *f.deletedVPC)
	// The security group must fall before the network holding it.
	assert.Equal(t, []string{"security-group:sg-ghost", "vpc:vpc-ghost"}, report.Deleted)
}

func TestDiscoverFiltersByStack(t *testing.T) {
	f := newCleanupFixture(t, ghostMappings(), nil)

	orphans, err := f.cleaner.Discover(context.Background(), nil, []string{"ghost"})
	require.NoError(t, err)
	require.Len(t, orphans, 2)

	orphans, err = f.cleaner.Discover(context.Background(), nil, []string{"other"})
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestDiscoverDeduplicatesAcrossKeys(t *testing.T) {
	// The same resource comes back for both discovery keys.
	f := newCleanupFixture(t, []taggingtypes.ResourceTagMapping{
		tagged("arn:aws:ec2:us-east-1:123456789012:instance/i-ghost", "ghost"),
	}, nil)

	orphans, err := f.cleaner.Discover(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, KindInstance, orphans[0].Kind)
	assert.Equal(t, "i-ghost", orphans[0].ID)
	assert.Equal(t, 25.0, orphans[0].MonthlyCost)
}

func TestParseARN(t *testing.T) {
	cases := []struct {
		arn  string
		kind Kind
		id   string
		ok   bool
	}{
		{"arn:aws:ec2:us-east-1:123456789012:instance/i-1", KindInstance, "i-1", true},
		{"arn:aws:ec2:us-east-1:123456789012:vpc/vpc-1", KindVPC, "vpc-1", true},
		{"arn:aws:ec2:us-east-1:123456789012:security-group/sg-1", KindSecurityGroup, "sg-1", true},
		{"arn:aws:elasticfilesystem:us-east-1:123456789012:file-system/fs-1", KindFilesystem, "fs-1", true},
		{"arn:aws:elasticloadbalancing:us-east-1:123456789012:loadbalancer/app/demo/abc", "", "", false},
		{"arn:aws:ec2:us-east-1:123456789012:snapshot/snap-1", "", "", false},
		{"not-an-arn", "", "", false},
	}
	for _, tc := range cases {
		kind, id, ok := parseARN(tc.arn)
		assert.Equal(t, tc.ok, ok, tc.arn)
		assert.Equal(t, tc.kind, kind, tc.arn)
		assert.Equal(t, tc.id, id, tc.arn)
	}
}
