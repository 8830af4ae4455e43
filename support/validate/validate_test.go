package validate

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	sqtypes "github.com/aws/aws-sdk-go-v2/service/servicequotas/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/log"
	"github.com/geusemaker/geusemaker/support/awsapi/fake"
	"github.com/geusemaker/geusemaker/support/healthcheck"
	"github.com/geusemaker/geusemaker/support/resource"
)

type memIndex struct{ stacks map[string]bool }

func (m *memIndex) Exists(stack string) bool { return m.stacks[stack] }

type validateFixture struct {
	v      *Validator
	ec2    *fake.EC2
	sts    *fake.STS
	iamc   *fake.IAM
	quotas *fake.ServiceQuotas
	efsc   *fake.EFS
	elb    *fake.ELBV2
	index  *memIndex
}

// newValidateFixture wires a validator over fakes that pass every check.
func newValidateFixture(t *testing.T) *validateFixture {
	t.Helper()
	lg := log.Discard()
	f := &validateFixture{index: &memIndex{stacks: map[string]bool{}}}

	f.sts = &fake.STS{
		GetCallerIdentityFn: func(context.Context, *sts.GetCallerIdentityInput) (*sts.GetCallerIdentityOutput, error) {
			return &sts.GetCallerIdentityOutput{
				Account: aws.String("123456789012"),
				Arn:     aws.String("arn:aws:iam::123456789012:user/deployer"),
			}, nil
		},
	}
	f.iamc = &fake.IAM{
		SimulatePrincipalPolicyFn: func(_ context.Context, in *iam.SimulatePrincipalPolicyInput) (*iam.SimulatePrincipalPolicyOutput, error) {
			out := &iam.SimulatePrincipalPolicyOutput{}
			for _, action := range in.ActionNames {
				out.EvaluationResults = append(out.EvaluationResults, iamtypes.EvaluationResult{
					EvalActionName: aws.String(action),
					EvalDecision:   iamtypes.PolicyEvaluationDecisionTypeAllowed,
				})
			}
			return out, nil
		},
	}
	f.quotas = &fake.ServiceQuotas{
		GetServiceQuotaFn: func(context.Context, *servicequotas.GetServiceQuotaInput) (*servicequotas.GetServiceQuotaOutput, error) {
			return &servicequotas.GetServiceQuotaOutput{Quota: &sqtypes.ServiceQuota{Value: aws.Float64(32)}}, nil
		},
	}
	f.ec2 = &fake.EC2{
		DescribeRegionsFn: func(context.Context, *ec2.DescribeRegionsInput) (*ec2.DescribeRegionsOutput, error) {
			return &ec2.DescribeRegionsOutput{Regions: []ec2types.Region{{RegionName: aws.String("us-east-1")}}}, nil
		},
		DescribeAvailabilityZonesFn: func(context.Context, *ec2.DescribeAvailabilityZonesInput) (*ec2.DescribeAvailabilityZonesOutput, error) {
			return &ec2.DescribeAvailabilityZonesOutput{}, nil
		},
		DescribeInstanceTypeOfferingsFn: func(context.Context, *ec2.DescribeInstanceTypeOfferingsInput) (*ec2.DescribeInstanceTypeOfferingsOutput, error) {
			return &ec2.DescribeInstanceTypeOfferingsOutput{InstanceTypeOfferings: []ec2types.InstanceTypeOffering{
				{InstanceType: ec2types.InstanceTypeT3Medium},
			}}, nil
		},
		DescribeVpcsFn: func(context.Context, *ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error) {
			return &ec2.DescribeVpcsOutput{}, nil
		},
	}
	f.efsc = &fake.EFS{
		DescribeFileSystemsFn: func(context.Context, *efs.DescribeFileSystemsInput) (*efs.DescribeFileSystemsOutput, error) {
			return &efs.DescribeFileSystemsOutput{}, nil
		},
	}
	f.elb = &fake.ELBV2{
		DescribeLoadBalancersFn: func(context.Context, *elbv2.DescribeLoadBalancersInput) (*elbv2.DescribeLoadBalancersOutput, error) {
			return &elbv2.DescribeLoadBalancersOutput{}, nil
		},
	}

	f.v = New(Deps{
		Region:      "us-east-1",
		STS:         f.sts,
		IAM:         f.iamc,
		Quotas:      f.quotas,
		EC2:         f.ec2,
		EFS:         f.efsc,
		ELB:         f.elb,
		Networks:    resource.NewVPCService(f.ec2, lg),
		Groups:      resource.NewSGService(f.ec2, lg),
		Instances:   resource.NewInstanceService(f.ec2, lg),
		Filesystems: resource.NewEFSService(f.efsc, lg),
		Index:       f.index,
		Log:         lg,
	})
	return f
}

func validConfig() api.DeploymentConfig {
	cfg := api.DefaultConfig()
	cfg.StackName = "demo"
	cfg.Tier = api.TierDev
	cfg.Region = "us-east-1"
	return cfg
}

func checkByName(t *testing.T, r *Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("report has no check %q", name)
	return Check{}
}

func TestPreDeployAllChecksPass(t *testing.T) {
	f := newValidateFixture(t)

	report := f.v.PreDeploy(context.Background(), validConfig())
	assert.True(t, report.Passed())
	// credentials, permissions, one check per quota, region, config, naming.
	assert.Len(t, report.Checks, 5+len(quotaChecks))
	for _, c := range report.Checks {
		assert.True(t, c.Passed, c.Name)
	}
	creds := checkByName(t, report, "credentials")
	assert.Equal(t, "123456789012", creds.Details["account"])
}

func TestPreDeployCredentialFailureSkipsSimulation(t *testing.T) {
	f := newValidateFixture(t)
	f.sts.GetCallerIdentityFn = func(context.Context, *sts.GetCallerIdentityInput) (*sts.GetCallerIdentityOutput, error) {
		return nil, fake.APIError("ExpiredToken", "token expired")
	}

	report := f.v.PreDeploy(context.Background(), validConfig())
	assert.False(t, report.Passed())
	creds := checkByName(t, report, "credentials")
	assert.Equal(t, SeverityError, creds.Severity)
	assert.Contains(t, creds.Remediation, "refresh")
	for _, c := range report.Checks {
		require.NotEqual(t, "permissions", c.Name, "simulation needs an identity")
	}
}

func TestPreDeployDeniedActions(t *testing.T) {
	f := newValidateFixture(t)
	f.iamc.SimulatePrincipalPolicyFn = func(_ context.Context, in *iam.SimulatePrincipalPolicyInput) (*iam.SimulatePrincipalPolicyOutput, error) {
		out := &iam.SimulatePrincipalPolicyOutput{}
		for i, action := range in.ActionNames {
			decision := iamtypes.PolicyEvaluationDecisionTypeAllowed
			if i < 2 {
				decision = iamtypes.PolicyEvaluationDecisionTypeImplicitDeny
			}
			out.EvaluationResults = append(out.EvaluationResults, iamtypes.EvaluationResult{
				EvalActionName: aws.String(action),
				EvalDecision:   decision,
			})
		}
		return out, nil
	}

	report := f.v.PreDeploy(context.Background(), validConfig())
	assert.False(t, report.Passed())
	perms := checkByName(t, report, "permissions")
	assert.Equal(t, SeverityError, perms.Severity)
	assert.Contains(t, perms.Message, "2 of")
	assert.Contains(t, perms.Details["denied"], "ec2:RunInstances")
}

func TestPreDeployQuotaSeverities(t *testing.T) {
	f := newValidateFixture(t)
	f.quotas.GetServiceQuotaFn = func(_ context.Context, in *servicequotas.GetServiceQuotaInput) (*servicequotas.GetServiceQuotaOutput, error) {
		switch aws.ToString(in.QuotaCode) {
		case "L-1216C47A":
			// Below the 4 vCPUs a deploy needs.
			return &servicequotas.GetServiceQuotaOutput{Quota: &sqtypes.ServiceQuota{Value: aws.Float64(2)}}, nil
		case "L-0263D0A3":
			return nil, fake.APIError("NoSuchResourceException", "no such quota")
		default:
			return &servicequotas.GetServiceQuotaOutput{Quota: &sqtypes.ServiceQuota{Value: aws.Float64(10)}}, nil
		}
	}

	report := f.v.PreDeploy(context.Background(), validConfig())
	assert.False(t, report.Passed())
	low := checkByName(t, report, "quota:running on-demand standard vCPUs")
	assert.Equal(t, SeverityError, low.Severity)
	missing := checkByName(t, report, "quota:elastic IP addresses")
	assert.Equal(t, SeverityWarning, missing.Severity)
	ok := checkByName(t, report, "quota:filesystems per account")
	assert.True(t, ok.Passed)
	// A warning alone never fails the report; the low quota does.
	assert.Len(t, report.Failures(SeverityError), 1)
}

func TestPreDeployRegionNotEnabled(t *testing.T) {
	f := newValidateFixture(t)
	f.ec2.DescribeRegionsFn = func(context.Context, *ec2.DescribeRegionsInput) (*ec2.DescribeRegionsOutput, error) {
		return &ec2.DescribeRegionsOutput{Regions: []ec2types.Region{{RegionName: aws.String("eu-west-1")}}}, nil
	}

	report := f.v.PreDeploy(context.Background(), validConfig())
	region := checkByName(t, report, "region-services")
	assert.False(t, region.Passed)
	assert.Contains(t, region.Message, "not enabled")
}

func TestPreDeployInstanceTypeNotOffered(t *testing.T) {
	f := newValidateFixture(t)
	f.ec2.DescribeInstanceTypeOfferingsFn = func(context.Context, *ec2.DescribeInstanceTypeOfferingsInput) (*ec2.DescribeInstanceTypeOfferingsOutput, error) {
		return &ec2.DescribeInstanceTypeOfferingsOutput{}, nil
	}

	report := f.v.PreDeploy(context.Background(), validConfig())
	cfg := checkByName(t, report, "config")
	assert.False(t, cfg.Passed)
	assert.Contains(t, cfg.Message, "not offered")
}

func TestPreDeployNamingConflicts(t *testing.T) {
	f := newValidateFixture(t)
	f.index.stacks["demo"] = true

	report := f.v.PreDeploy(context.Background(), validConfig())
	naming := checkByName(t, report, "naming-conflicts")
	assert.False(t, naming.Passed)
	assert.Contains(t, naming.Message, "local record")

	// A provider-side VPC with the stack's name tag also conflicts.
	f = newValidateFixture(t)
	f.ec2.DescribeVpcsFn = func(_ context.Context, in *ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error) {
		return &ec2.DescribeVpcsOutput{Vpcs: []ec2types.Vpc{{VpcId: aws.String("vpc-taken")}}}, nil
	}
	report = f.v.PreDeploy(context.Background(), validConfig())
	naming = checkByName(t, report, "naming-conflicts")
	assert.False(t, naming.Passed)
	assert.Contains(t, naming.Message, "vpc-taken")
}

// reusedNetworkFixture layers a healthy reused network over the base fakes:
// a tagged available VPC, an attached gateway, two subnets, and a main route
// table with a default route to the gateway.
func reusedNetworkFixture(t *testing.T) *validateFixture {
	t.Helper()
	f := newValidateFixture(t)
	f.ec2.DescribeVpcsFn = func(_ context.Context, in *ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error) {
		if len(in.VpcIds) > 0 {
			return &ec2.DescribeVpcsOutput{Vpcs: []ec2types.Vpc{{
				VpcId: aws.String("vpc-1"),
				State: ec2types.VpcStateAvailable,
				Tags: []ec2types.Tag{
					{Key: aws.String("Stack"), Value: aws.String("demo")},
					{Key: aws.String("geusemaker:deployment"), Value: aws.String("demo")},
				},
			}}}, nil
		}
		// Name-tag search for the conflict check finds nothing.
		return &ec2.DescribeVpcsOutput{}, nil
	}
	f.ec2.DescribeInternetGatewaysFn = func(context.Context, *ec2.DescribeInternetGatewaysInput) (*ec2.DescribeInternetGatewaysOutput, error) {
		return &ec2.DescribeInternetGatewaysOutput{InternetGateways: []ec2types.InternetGateway{{
			InternetGatewayId: aws.String("igw-1"),
		}}}, nil
	}
	f.ec2.DescribeSubnetsFn = func(context.Context, *ec2.DescribeSubnetsInput) (*ec2.DescribeSubnetsOutput, error) {
		return &ec2.DescribeSubnetsOutput{Subnets: []ec2types.Subnet{
			{SubnetId: aws.String("subnet-a")},
			{SubnetId: aws.String("subnet-b")},
		}}, nil
	}
	f.ec2.DescribeRouteTablesFn = func(context.Context, *ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error) {
		return &ec2.DescribeRouteTablesOutput{RouteTables: []ec2types.RouteTable{{
			RouteTableId: aws.String("rtb-main"),
			Associations: []ec2types.RouteTableAssociation{{Main: aws.Bool(true)}},
			Routes: []ec2types.Route{{
				DestinationCidrBlock: aws.String("0.0.0.0/0"),
				GatewayId:            aws.String("igw-1"),
			}},
		}}}, nil
	}
	return f
}

func TestPreDeployExistingNetwork(t *testing.T) {
	f := reusedNetworkFixture(t)

	cfg := validConfig()
	cfg.VPCID = "vpc-1"
	cfg.PublicSubnetIDs = []string{"subnet-a", "subnet-b"}
	report := f.v.PreDeploy(context.Background(), cfg)
	assert.True(t, report.Passed())
	network := checkByName(t, report, "existing-network")
	assert.True(t, network.Passed, network.Details["issues"])
	assert.True(t, checkByName(t, report, "vpc-tags").Passed)
	assert.True(t, checkByName(t, report, "vpc-internet-gateway").Passed)
	assert.True(t, checkByName(t, report, "vpc-routes").Passed)

	// A subnet outside the network fails the topology check.
	cfg.PublicSubnetIDs = []string{"subnet-a", "subnet-other"}
	report = f.v.PreDeploy(context.Background(), cfg)
	network = checkByName(t, report, "existing-network")
	assert.False(t, network.Passed)
	assert.Contains(t, network.Details["issues"], "subnet-other")
}

func TestPreDeployReusedNetworkWithoutGateway(t *testing.T) {
	f := reusedNetworkFixture(t)
	f.ec2.DescribeInternetGatewaysFn = func(context.Context, *ec2.DescribeInternetGatewaysInput) (*ec2.DescribeInternetGatewaysOutput, error) {
		return &ec2.DescribeInternetGatewaysOutput{}, nil
	}
	f.ec2.DescribeRouteTablesFn = func(context.Context, *ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error) {
		return &ec2.DescribeRouteTablesOutput{RouteTables: []ec2types.RouteTable{{
			RouteTableId: aws.String("rtb-main"),
			Associations: []ec2types.RouteTableAssociation{{Main: aws.Bool(true)}},
		}}}, nil
	}

	cfg := validConfig()
	cfg.VPCID = "vpc-1"
	cfg.PublicSubnetIDs = []string{"subnet-a"}
	report := f.v.PreDeploy(context.Background(), cfg)

	// Both the gateway and the routing report their own failure.
	assert.False(t, report.Passed())
	gateway := checkByName(t, report, "vpc-internet-gateway")
	assert.False(t, gateway.Passed)
	assert.Equal(t, SeverityError, gateway.Severity)
	assert.Contains(t, gateway.Remediation, "--attach-internet-gateway")
	routes := checkByName(t, report, "vpc-routes")
	assert.False(t, routes.Passed)
	assert.Equal(t, SeverityError, routes.Severity)
	assert.Contains(t, routes.Details["subnets"], "subnet-a")

	// The attach flag satisfies both: the deploy attaches the gateway and
	// adds the default route.
	cfg.AttachInternetGateway = true
	report = f.v.PreDeploy(context.Background(), cfg)
	assert.True(t, report.Passed())
	assert.True(t, checkByName(t, report, "vpc-internet-gateway").Passed)
	assert.True(t, checkByName(t, report, "vpc-routes").Passed)
}

func TestPreDeployReusedNetworkMissingRoutes(t *testing.T) {
	f := reusedNetworkFixture(t)
	// Gateway attached, but the subnet's own table lacks the default route
	// and the main table only routes locally.
	f.ec2.DescribeRouteTablesFn = func(context.Context, *ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error) {
		return &ec2.DescribeRouteTablesOutput{RouteTables: []ec2types.RouteTable{
			{
				RouteTableId: aws.String("rtb-main"),
				Associations: []ec2types.RouteTableAssociation{{Main: aws.Bool(true)}},
				Routes: []ec2types.Route{{
					DestinationCidrBlock: aws.String("0.0.0.0/0"),
					GatewayId:            aws.String("igw-1"),
				}},
			},
			{
				RouteTableId: aws.String("rtb-a"),
				Associations: []ec2types.RouteTableAssociation{{SubnetId: aws.String("subnet-a")}},
				Routes: []ec2types.Route{{
					DestinationCidrBlock: aws.String("10.0.0.0/16"),
					GatewayId:            aws.String("local"),
				}},
			},
		}}, nil
	}

	cfg := validConfig()
	cfg.VPCID = "vpc-1"
	cfg.PublicSubnetIDs = []string{"subnet-a", "subnet-b"}
	report := f.v.PreDeploy(context.Background(), cfg)

	assert.False(t, report.Passed())
	assert.True(t, checkByName(t, report, "vpc-internet-gateway").Passed)
	routes := checkByName(t, report, "vpc-routes")
	assert.False(t, routes.Passed)
	// subnet-b falls back to the routed main table; only subnet-a fails.
	assert.Equal(t, "subnet-a", routes.Details["subnets"])
}

func TestPreDeployReusedNetworkMissingTags(t *testing.T) {
	f := reusedNetworkFixture(t)
	f.ec2.DescribeVpcsFn = func(_ context.Context, in *ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error) {
		if len(in.VpcIds) > 0 {
			return &ec2.DescribeVpcsOutput{Vpcs: []ec2types.Vpc{{
				VpcId: aws.String("vpc-1"),
				State: ec2types.VpcStateAvailable,
			}}}, nil
		}
		return &ec2.DescribeVpcsOutput{}, nil
	}

	cfg := validConfig()
	cfg.VPCID = "vpc-1"
	cfg.PublicSubnetIDs = []string{"subnet-a"}
	report := f.v.PreDeploy(context.Background(), cfg)

	tags := checkByName(t, report, "vpc-tags")
	assert.False(t, tags.Passed)
	assert.Equal(t, SeverityWarning, tags.Severity)
	assert.Contains(t, tags.Details["missing"], "geusemaker:deployment")
	// An untagged but otherwise sound network is still usable.
	assert.True(t, report.Passed())
}

func TestPostDeploy(t *testing.T) {
	f := newValidateFixture(t)
	f.ec2.DescribeInstancesFn = func(context.Context, *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
		return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{
			Instances: []ec2types.Instance{{
				InstanceId: aws.String("i-1"),
				State:      &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
			}},
		}}}, nil
	}
	f.ec2.DescribeInstanceStatusFn = func(context.Context, *ec2.DescribeInstanceStatusInput) (*ec2.DescribeInstanceStatusOutput, error) {
		return &ec2.DescribeInstanceStatusOutput{InstanceStatuses: []ec2types.InstanceStatus{{
			InstanceStatus: &ec2types.InstanceStatusSummary{Status: ec2types.SummaryStatusOk},
			SystemStatus:   &ec2types.InstanceStatusSummary{Status: ec2types.SummaryStatusOk},
		}}}, nil
	}
	f.efsc.DescribeMountTargetsFn = func(context.Context, *efs.DescribeMountTargetsInput) (*efs.DescribeMountTargetsOutput, error) {
		return &efs.DescribeMountTargetsOutput{MountTargets: []efstypes.MountTargetDescription{{
			MountTargetId:  aws.String("fsmt-1"),
			LifeCycleState: efstypes.LifeCycleStateAvailable,
		}}}, nil
	}
	f.v.probeFn = func(context.Context, string) *healthcheck.Summary {
		return &healthcheck.Summary{Results: []healthcheck.Result{
			{Service: "n8n", Healthy: true},
			{Service: "ollama", Healthy: true},
		}}
	}

	st := api.NewDeploymentState(validConfig())
	st.InstanceID = "i-1"
	st.PublicIP = "54.0.0.1"
	st.MountTargetID = "fsmt-1"

	report := f.v.PostDeploy(context.Background(), st)
	assert.True(t, report.Passed())

	// An unhealthy service turns the report red.
	f.v.probeFn = func(context.Context, string) *healthcheck.Summary {
		return &healthcheck.Summary{Results: []healthcheck.Result{
			{Service: "n8n", Healthy: true},
			{Service: "qdrant", Healthy: false, ErrorMessage: "connection refused"},
		}}
	}
	report = f.v.PostDeploy(context.Background(), st)
	assert.False(t, report.Passed())
	services := checkByName(t, report, "services")
	assert.Contains(t, services.Details["unhealthy"], "qdrant")
}
