// Package fake provides hand-written, configurable implementations of the
// awsapi interfaces. Tests assign only the function fields they need; any
// call on an unset field fails loudly so tests never pass by accident.
package fake

import (
	"context"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	taggingapi "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// APIError builds a provider-shaped error with the given code, for driving
// error-code branches in tests.
func APIError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

func notImplemented(service, method string) error {
	return fmt.Errorf("fake %s: %s not configured", service, method)
}

// EC2 is a configurable awsapi.EC2API.
type EC2 struct {
	CreateVpcFn                     func(context.Context, *ec2.CreateVpcInput) (*ec2.CreateVpcOutput, error)
	DescribeVpcsFn                  func(context.Context, *ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error)
	DescribeVpcAttributeFn          func(context.Context, *ec2.DescribeVpcAttributeInput) (*ec2.DescribeVpcAttributeOutput, error)
	ModifyVpcAttributeFn            func(context.Context, *ec2.ModifyVpcAttributeInput) (*ec2.ModifyVpcAttributeOutput, error)
	DeleteVpcFn                     func(context.Context, *ec2.DeleteVpcInput) (*ec2.DeleteVpcOutput, error)
	CreateSubnetFn                  func(context.Context, *ec2.CreateSubnetInput) (*ec2.CreateSubnetOutput, error)
	DescribeSubnetsFn               func(context.Context, *ec2.DescribeSubnetsInput) (*ec2.DescribeSubnetsOutput, error)
	ModifySubnetAttributeFn         func(context.Context, *ec2.ModifySubnetAttributeInput) (*ec2.ModifySubnetAttributeOutput, error)
	DeleteSubnetFn                  func(context.Context, *ec2.DeleteSubnetInput) (*ec2.DeleteSubnetOutput, error)
	CreateInternetGatewayFn         func(context.Context, *ec2.CreateInternetGatewayInput) (*ec2.CreateInternetGatewayOutput, error)
	DescribeInternetGatewaysFn      func(context.Context, *ec2.DescribeInternetGatewaysInput) (*ec2.DescribeInternetGatewaysOutput, error)
	AttachInternetGatewayFn         func(context.Context, *ec2.AttachInternetGatewayInput) (*ec2.AttachInternetGatewayOutput, error)
	DetachInternetGatewayFn         func(context.Context, *ec2.DetachInternetGatewayInput) (*ec2.DetachInternetGatewayOutput, error)
	DeleteInternetGatewayFn         func(context.Context, *ec2.DeleteInternetGatewayInput) (*ec2.DeleteInternetGatewayOutput, error)
	CreateRouteTableFn              func(context.Context, *ec2.CreateRouteTableInput) (*ec2.CreateRouteTableOutput, error)
	DescribeRouteTablesFn           func(context.Context, *ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error)
	CreateRouteFn                   func(context.Context, *ec2.CreateRouteInput) (*ec2.CreateRouteOutput, error)
	AssociateRouteTableFn           func(context.Context, *ec2.AssociateRouteTableInput) (*ec2.AssociateRouteTableOutput, error)
	DeleteRouteTableFn              func(context.Context, *ec2.DeleteRouteTableInput) (*ec2.DeleteRouteTableOutput, error)
	DescribeNetworkInterfacesFn     func(context.Context, *ec2.DescribeNetworkInterfacesInput) (*ec2.DescribeNetworkInterfacesOutput, error)
	DeleteNetworkInterfaceFn        func(context.Context, *ec2.DeleteNetworkInterfaceInput) (*ec2.DeleteNetworkInterfaceOutput, error)
	CreateSecurityGroupFn           func(context.Context, *ec2.CreateSecurityGroupInput) (*ec2.CreateSecurityGroupOutput, error)
	DescribeSecurityGroupsFn        func(context.Context, *ec2.DescribeSecurityGroupsInput) (*ec2.DescribeSecurityGroupsOutput, error)
	AuthorizeSecurityGroupIngressFn func(context.Context, *ec2.AuthorizeSecurityGroupIngressInput) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	DeleteSecurityGroupFn           func(context.Context, *ec2.DeleteSecurityGroupInput) (*ec2.DeleteSecurityGroupOutput, error)
	RunInstancesFn                  func(context.Context, *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error)
	DescribeInstancesFn             func(context.Context, *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error)
	DescribeInstanceStatusFn        func(context.Context, *ec2.DescribeInstanceStatusInput) (*ec2.DescribeInstanceStatusOutput, error)
	StopInstancesFn                 func(context.Context, *ec2.StopInstancesInput) (*ec2.StopInstancesOutput, error)
	StartInstancesFn                func(context.Context, *ec2.StartInstancesInput) (*ec2.StartInstancesOutput, error)
	ModifyInstanceAttributeFn       func(context.Context, *ec2.ModifyInstanceAttributeInput) (*ec2.ModifyInstanceAttributeOutput, error)
	TerminateInstancesFn            func(context.Context, *ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error)
	DescribeKeyPairsFn              func(context.Context, *ec2.DescribeKeyPairsInput) (*ec2.DescribeKeyPairsOutput, error)
	CreateKeyPairFn                 func(context.Context, *ec2.CreateKeyPairInput) (*ec2.CreateKeyPairOutput, error)
	DeleteKeyPairFn                 func(context.Context, *ec2.DeleteKeyPairInput) (*ec2.DeleteKeyPairOutput, error)
	DescribeSpotPriceHistoryFn      func(context.Context, *ec2.DescribeSpotPriceHistoryInput) (*ec2.DescribeSpotPriceHistoryOutput, error)
	GetSpotPlacementScoresFn        func(context.Context, *ec2.GetSpotPlacementScoresInput) (*ec2.GetSpotPlacementScoresOutput, error)
	DescribeAvailabilityZonesFn     func(context.Context, *ec2.DescribeAvailabilityZonesInput) (*ec2.DescribeAvailabilityZonesOutput, error)
	DescribeRegionsFn               func(context.Context, *ec2.DescribeRegionsInput) (*ec2.DescribeRegionsOutput, error)
	DescribeImagesFn                func(context.Context, *ec2.DescribeImagesInput) (*ec2.DescribeImagesOutput, error)
	DescribeInstanceTypeOfferingsFn func(context.Context, *ec2.DescribeInstanceTypeOfferingsInput) (*ec2.DescribeInstanceTypeOfferingsOutput, error)
}

func (f *EC2) CreateVpc(ctx context.Context, in *ec2.CreateVpcInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	if f.CreateVpcFn == nil {
		return nil, notImplemented("EC2", "CreateVpc")
	}
	return f.CreateVpcFn(ctx, in)
}

func (f *EC2) DescribeVpcs(ctx context.Context, in *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	if f.DescribeVpcsFn == nil {
		return nil, notImplemented("EC2", "DescribeVpcs")
	}
	return f.DescribeVpcsFn(ctx, in)
}

func (f *EC2) DescribeVpcAttribute(ctx context.Context, in *ec2.DescribeVpcAttributeInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcAttributeOutput, error) {
	if f.DescribeVpcAttributeFn == nil {
		return nil, notImplemented("EC2", "DescribeVpcAttribute")
	}
	return f.DescribeVpcAttributeFn(ctx, in)
}

func (f *EC2) ModifyVpcAttribute(ctx context.Context, in *ec2.ModifyVpcAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error) {
	if f.ModifyVpcAttributeFn == nil {
		return nil, notImplemented("EC2", "ModifyVpcAttribute")
	}
	return f.ModifyVpcAttributeFn(ctx, in)
}

func (f *EC2) DeleteVpc(ctx context.Context, in *ec2.DeleteVpcInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	if f.DeleteVpcFn == nil {
		return nil, notImplemented("EC2", "DeleteVpc")
	}
	return f.DeleteVpcFn(ctx, in)
}

func (f *EC2) CreateSubnet(ctx context.Context, in *ec2.CreateSubnetInput, _ ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error) {
	if f.CreateSubnetFn == nil {
		return nil, notImplemented("EC2", "CreateSubnet")
	}
	return f.CreateSubnetFn(ctx, in)
}

func (f *EC2) DescribeSubnets(ctx context.Context, in *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	if f.DescribeSubnetsFn == nil {
		return nil, notImplemented("EC2", "DescribeSubnets")
	}
	return f.DescribeSubnetsFn(ctx, in)
}

func (f *EC2) ModifySubnetAttribute(ctx context.Context, in *ec2.ModifySubnetAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error) {
	if f.ModifySubnetAttributeFn == nil {
		return nil, notImplemented("EC2", "ModifySubnetAttribute")
	}
	return f.ModifySubnetAttributeFn(ctx, in)
}

func (f *EC2) DeleteSubnet(ctx context.Context, in *ec2.DeleteSubnetInput, _ ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	if f.DeleteSubnetFn == nil {
		return nil, notImplemented("EC2", "DeleteSubnet")
	}
	return f.DeleteSubnetFn(ctx, in)
}

func (f *EC2) CreateInternetGateway(ctx context.Context, in *ec2.CreateInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error) {
	if f.CreateInternetGatewayFn == nil {
		return nil, notImplemented("EC2", "CreateInternetGateway")
	}
	return f.CreateInternetGatewayFn(ctx, in)
}

func (f *EC2) DescribeInternetGateways(ctx context.Context, in *ec2.DescribeInternetGatewaysInput, _ ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error) {
	if f.DescribeInternetGatewaysFn == nil {
		return nil, notImplemented("EC2", "DescribeInternetGateways")
	}
	return f.DescribeInternetGatewaysFn(ctx, in)
}

func (f *EC2) AttachInternetGateway(ctx context.Context, in *ec2.AttachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error) {
	if f.AttachInternetGatewayFn == nil {
		return nil, notImplemented("EC2", "AttachInternetGateway")
	}
	return f.AttachInternetGatewayFn(ctx, in)
}

func (f *EC2) DetachInternetGateway(ctx context.Context, in *ec2.DetachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	if f.DetachInternetGatewayFn == nil {
		return nil, notImplemented("EC2", "DetachInternetGateway")
	}
	return f.DetachInternetGatewayFn(ctx, in)
}

func (f *EC2) DeleteInternetGateway(ctx context.Context, in *ec2.DeleteInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	if f.DeleteInternetGatewayFn == nil {
		return nil, notImplemented("EC2", "DeleteInternetGateway")
	}
	return f.DeleteInternetGatewayFn(ctx, in)
}

func (f *EC2) CreateRouteTable(ctx context.Context, in *ec2.CreateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error) {
	if f.CreateRouteTableFn == nil {
		return nil, notImplemented("EC2", "CreateRouteTable")
	}
	return f.CreateRouteTableFn(ctx, in)
}

func (f *EC2) DescribeRouteTables(ctx context.Context, in *ec2.DescribeRouteTablesInput, _ ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	if f.DescribeRouteTablesFn == nil {
		return nil, notImplemented("EC2", "DescribeRouteTables")
	}
	return f.DescribeRouteTablesFn(ctx, in)
}

func (f *EC2) CreateRoute(ctx context.Context, in *ec2.CreateRouteInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	if f.CreateRouteFn == nil {
		return nil, notImplemented("EC2", "CreateRoute")
	}
	return f.CreateRouteFn(ctx, in)
}

func (f *EC2) AssociateRouteTable(ctx context.Context, in *ec2.AssociateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error) {
	if f.AssociateRouteTableFn == nil {
		return nil, notImplemented("EC2", "AssociateRouteTable")
	}
	return f.AssociateRouteTableFn(ctx, in)
}

func (f *EC2) DeleteRouteTable(ctx context.Context, in *ec2.DeleteRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error) {
	if f.DeleteRouteTableFn == nil {
		return nil, notImplemented("EC2", "DeleteRouteTable")
	}
	return f.DeleteRouteTableFn(ctx, in)
}

func (f *EC2) DescribeNetworkInterfaces(ctx context.Context, in *ec2.DescribeNetworkInterfacesInput, _ ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
	if f.DescribeNetworkInterfacesFn == nil {
		return nil, notImplemented("EC2", "DescribeNetworkInterfaces")
	}
	return f.DescribeNetworkInterfacesFn(ctx, in)
}

func (f *EC2) DeleteNetworkInterface(ctx context.Context, in *ec2.DeleteNetworkInterfaceInput, _ ...func(*ec2.Options)) (*ec2.DeleteNetworkInterfaceOutput, error) {
	if f.DeleteNetworkInterfaceFn == nil {
		return nil, notImplemented("EC2", "DeleteNetworkInterface")
	}
	return f.DeleteNetworkInterfaceFn(ctx, in)
}

func (f *EC2) CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	if f.CreateSecurityGroupFn == nil {
		return nil, notImplemented("EC2", "CreateSecurityGroup")
	}
	return f.CreateSecurityGroupFn(ctx, in)
}

func (f *EC2) DescribeSecurityGroups(ctx context.Context, in *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	if f.DescribeSecurityGroupsFn == nil {
		return nil, notImplemented("EC2", "DescribeSecurityGroups")
	}
	return f.DescribeSecurityGroupsFn(ctx, in)
}

func (f *EC2) AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	if f.AuthorizeSecurityGroupIngressFn == nil {
		return nil, notImplemented("EC2", "AuthorizeSecurityGroupIngress")
	}
	return f.AuthorizeSecurityGroupIngressFn(ctx, in)
}

func (f *EC2) DeleteSecurityGroup(ctx context.Context, in *ec2.DeleteSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	if f.DeleteSecurityGroupFn == nil {
		return nil, notImplemented("EC2", "DeleteSecurityGroup")
	}
	return f.DeleteSecurityGroupFn(ctx, in)
}

func (f *EC2) RunInstances(ctx context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	if f.RunInstancesFn == nil {
		return nil, notImplemented("EC2", "RunInstances")
	}
	return f.RunInstancesFn(ctx, in)
}

func (f *EC2) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.DescribeInstancesFn == nil {
		return nil, notImplemented("EC2", "DescribeInstances")
	}
	return f.DescribeInstancesFn(ctx, in)
}

func (f *EC2) DescribeInstanceStatus(ctx context.Context, in *ec2.DescribeInstanceStatusInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceStatusOutput, error) {
	if f.DescribeInstanceStatusFn == nil {
		return nil, notImplemented("EC2", "DescribeInstanceStatus")
	}
	return f.DescribeInstanceStatusFn(ctx, in)
}

func (f *EC2) StopInstances(ctx context.Context, in *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	if f.StopInstancesFn == nil {
		return nil, notImplemented("EC2", "StopInstances")
	}
	return f.StopInstancesFn(ctx, in)
}

func (f *EC2) StartInstances(ctx context.Context, in *ec2.StartInstancesInput, _ ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	if f.StartInstancesFn == nil {
		return nil, notImplemented("EC2", "StartInstances")
	}
	return f.StartInstancesFn(ctx, in)
}

func (f *EC2) ModifyInstanceAttribute(ctx context.Context, in *ec2.ModifyInstanceAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error) {
	if f.ModifyInstanceAttributeFn == nil {
		return nil, notImplemented("EC2", "ModifyInstanceAttribute")
	}
	return f.ModifyInstanceAttributeFn(ctx, in)
}

func (f *EC2) TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	if f.TerminateInstancesFn == nil {
		return nil, notImplemented("EC2", "TerminateInstances")
	}
	return f.TerminateInstancesFn(ctx, in)
}

func (f *EC2) DescribeKeyPairs(ctx context.Context, in *ec2.DescribeKeyPairsInput, _ ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error) {
	if f.DescribeKeyPairsFn == nil {
		return nil, notImplemented("EC2", "DescribeKeyPairs")
	}
	return f.DescribeKeyPairsFn(ctx, in)
}

func (f *EC2) CreateKeyPair(ctx context.Context, in *ec2.CreateKeyPairInput, _ ...func(*ec2.Options)) (*ec2.CreateKeyPairOutput, error) {
	if f.CreateKeyPairFn == nil {
		return nil, notImplemented("EC2", "CreateKeyPair")
	}
	return f.CreateKeyPairFn(ctx, in)
}

func (f *EC2) DeleteKeyPair(ctx context.Context, in *ec2.DeleteKeyPairInput, _ ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error) {
	if f.DeleteKeyPairFn == nil {
		return nil, notImplemented("EC2", "DeleteKeyPair")
	}
	return f.DeleteKeyPairFn(ctx, in)
}

func (f *EC2) DescribeSpotPriceHistory(ctx context.Context, in *ec2.DescribeSpotPriceHistoryInput, _ ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error) {
	if f.DescribeSpotPriceHistoryFn == nil {
		return nil, notImplemented("EC2", "DescribeSpotPriceHistory")
	}
	return f.DescribeSpotPriceHistoryFn(ctx, in)
}

func (f *EC2) GetSpotPlacementScores(ctx context.Context, in *ec2.GetSpotPlacementScoresInput, _ ...func(*ec2.Options)) (*ec2.GetSpotPlacementScoresOutput, error) {
	if f.GetSpotPlacementScoresFn == nil {
		return nil, notImplemented("EC2", "GetSpotPlacementScores")
	}
	return f.GetSpotPlacementScoresFn(ctx, in)
}

func (f *EC2) DescribeAvailabilityZones(ctx context.Context, in *ec2.DescribeAvailabilityZonesInput, _ ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error) {
	if f.DescribeAvailabilityZonesFn == nil {
		return nil, notImplemented("EC2", "DescribeAvailabilityZones")
	}
	return f.DescribeAvailabilityZonesFn(ctx, in)
}

func (f *EC2) DescribeRegions(ctx context.Context, in *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	if f.DescribeRegionsFn == nil {
		return nil, notImplemented("EC2", "DescribeRegions")
	}
	return f.DescribeRegionsFn(ctx, in)
}

func (f *EC2) DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	if f.DescribeImagesFn == nil {
		return nil, notImplemented("EC2", "DescribeImages")
	}
	return f.DescribeImagesFn(ctx, in)
}

func (f *EC2) DescribeInstanceTypeOfferings(ctx context.Context, in *ec2.DescribeInstanceTypeOfferingsInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceTypeOfferingsOutput, error) {
	if f.DescribeInstanceTypeOfferingsFn == nil {
		return nil, notImplemented("EC2", "DescribeInstanceTypeOfferings")
	}
	return f.DescribeInstanceTypeOfferingsFn(ctx, in)
}

// EFS is a configurable awsapi.EFSAPI.
type EFS struct {
	CreateFileSystemFn     func(context.Context, *efs.CreateFileSystemInput) (*efs.CreateFileSystemOutput, error)
	DescribeFileSystemsFn  func(context.Context, *efs.DescribeFileSystemsInput) (*efs.DescribeFileSystemsOutput, error)
	DeleteFileSystemFn     func(context.Context, *efs.DeleteFileSystemInput) (*efs.DeleteFileSystemOutput, error)
	CreateMountTargetFn    func(context.Context, *efs.CreateMountTargetInput) (*efs.CreateMountTargetOutput, error)
	DescribeMountTargetsFn func(context.Context, *efs.DescribeMountTargetsInput) (*efs.DescribeMountTargetsOutput, error)
	DeleteMountTargetFn    func(context.Context, *efs.DeleteMountTargetInput) (*efs.DeleteMountTargetOutput, error)
}

func (f *EFS) CreateFileSystem(ctx context.Context, in *efs.CreateFileSystemInput, _ ...func(*efs.Options)) (*efs.CreateFileSystemOutput, error) {
	if f.CreateFileSystemFn == nil {
		return nil, notImplemented("EFS", "CreateFileSystem")
	}
	return f.CreateFileSystemFn(ctx, in)
}

func (f *EFS) DescribeFileSystems(ctx context.Context, in *efs.DescribeFileSystemsInput, _ ...func(*efs.Options)) (*efs.DescribeFileSystemsOutput, error) {
	if f.DescribeFileSystemsFn == nil {
		return nil, notImplemented("EFS", "DescribeFileSystems")
	}
	return f.DescribeFileSystemsFn(ctx, in)
}

func (f *EFS) DeleteFileSystem(ctx context.Context, in *efs.DeleteFileSystemInput, _ ...func(*efs.Options)) (*efs.DeleteFileSystemOutput, error) {
	if f.DeleteFileSystemFn == nil {
		return nil, notImplemented("EFS", "DeleteFileSystem")
	}
	return f.DeleteFileSystemFn(ctx, in)
}

func (f *EFS) CreateMountTarget(ctx context.Context, in *efs.CreateMountTargetInput, _ ...func(*efs.Options)) (*efs.CreateMountTargetOutput, error) {
	if f.CreateMountTargetFn == nil {
		return nil, notImplemented("EFS", "CreateMountTarget")
	}
	return f.CreateMountTargetFn(ctx, in)
}

func (f *EFS) DescribeMountTargets(ctx context.Context, in *efs.DescribeMountTargetsInput, _ ...func(*efs.Options)) (*efs.DescribeMountTargetsOutput, error) {
	if f.DescribeMountTargetsFn == nil {
		return nil, notImplemented("EFS", "DescribeMountTargets")
	}
	return f.DescribeMountTargetsFn(ctx, in)
}

func (f *EFS) DeleteMountTarget(ctx context.Context, in *efs.DeleteMountTargetInput, _ ...func(*efs.Options)) (*efs.DeleteMountTargetOutput, error) {
	if f.DeleteMountTargetFn == nil {
		return nil, notImplemented("EFS", "DeleteMountTarget")
	}
	return f.DeleteMountTargetFn(ctx, in)
}

// ELBV2 is a configurable awsapi.ELBV2API.
type ELBV2 struct {
	CreateLoadBalancerFn    func(context.Context, *elbv2.CreateLoadBalancerInput) (*elbv2.CreateLoadBalancerOutput, error)
	DescribeLoadBalancersFn func(context.Context, *elbv2.DescribeLoadBalancersInput) (*elbv2.DescribeLoadBalancersOutput, error)
	DeleteLoadBalancerFn    func(context.Context, *elbv2.DeleteLoadBalancerInput) (*elbv2.DeleteLoadBalancerOutput, error)
	CreateTargetGroupFn     func(context.Context, *elbv2.CreateTargetGroupInput) (*elbv2.CreateTargetGroupOutput, error)
	DescribeTargetGroupsFn  func(context.Context, *elbv2.DescribeTargetGroupsInput) (*elbv2.DescribeTargetGroupsOutput, error)
	DeleteTargetGroupFn     func(context.Context, *elbv2.DeleteTargetGroupInput) (*elbv2.DeleteTargetGroupOutput, error)
	CreateListenerFn        func(context.Context, *elbv2.CreateListenerInput) (*elbv2.CreateListenerOutput, error)
	RegisterTargetsFn       func(context.Context, *elbv2.RegisterTargetsInput) (*elbv2.RegisterTargetsOutput, error)
	DescribeTargetHealthFn  func(context.Context, *elbv2.DescribeTargetHealthInput) (*elbv2.DescribeTargetHealthOutput, error)
}

func (f *ELBV2) CreateLoadBalancer(ctx context.Context, in *elbv2.CreateLoadBalancerInput, _ ...func(*elbv2.Options)) (*elbv2.CreateLoadBalancerOutput, error) {
	if f.CreateLoadBalancerFn == nil {
		return nil, notImplemented("ELBV2", "CreateLoadBalancer")
	}
	return f.CreateLoadBalancerFn(ctx, in)
}

func (f *ELBV2) DescribeLoadBalancers(ctx context.Context, in *elbv2.DescribeLoadBalancersInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
	if f.DescribeLoadBalancersFn == nil {
		return nil, notImplemented("ELBV2", "DescribeLoadBalancers")
	}
	return f.DescribeLoadBalancersFn(ctx, in)
}

func (f *ELBV2) DeleteLoadBalancer(ctx context.Context, in *elbv2.DeleteLoadBalancerInput, _ ...func(*elbv2.Options)) (*elbv2.DeleteLoadBalancerOutput, error) {
	if f.DeleteLoadBalancerFn == nil {
		return nil, notImplemented("ELBV2", "DeleteLoadBalancer")
	}
	return f.DeleteLoadBalancerFn(ctx, in)
}

func (f *ELBV2) CreateTargetGroup(ctx context.Context, in *elbv2.CreateTargetGroupInput, _ ...func(*elbv2.Options)) (*elbv2.CreateTargetGroupOutput, error) {
	if f.CreateTargetGroupFn == nil {
		return nil, notImplemented("ELBV2", "CreateTargetGroup")
	}
	return f.CreateTargetGroupFn(ctx, in)
}

func (f *ELBV2) DescribeTargetGroups(ctx context.Context, in *elbv2.DescribeTargetGroupsInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeTargetGroupsOutput, error) {
	if f.DescribeTargetGroupsFn == nil {
		return nil, notImplemented("ELBV2", "DescribeTargetGroups")
	}
	return f.DescribeTargetGroupsFn(ctx, in)
}

func (f *ELBV2) DeleteTargetGroup(ctx context.Context, in *elbv2.DeleteTargetGroupInput, _ ...func(*elbv2.Options)) (*elbv2.DeleteTargetGroupOutput, error) {
	if f.DeleteTargetGroupFn == nil {
		return nil, notImplemented("ELBV2", "DeleteTargetGroup")
	}
	return f.DeleteTargetGroupFn(ctx, in)
}

func (f *ELBV2) CreateListener(ctx context.Context, in *elbv2.CreateListenerInput, _ ...func(*elbv2.Options)) (*elbv2.CreateListenerOutput, error) {
	if f.CreateListenerFn == nil {
		return nil, notImplemented("ELBV2", "CreateListener")
	}
	return f.CreateListenerFn(ctx, in)
}

func (f *ELBV2) RegisterTargets(ctx context.Context, in *elbv2.RegisterTargetsInput, _ ...func(*elbv2.Options)) (*elbv2.RegisterTargetsOutput, error) {
	if f.RegisterTargetsFn == nil {
		return nil, notImplemented("ELBV2", "RegisterTargets")
	}
	return f.RegisterTargetsFn(ctx, in)
}

func (f *ELBV2) DescribeTargetHealth(ctx context.Context, in *elbv2.DescribeTargetHealthInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeTargetHealthOutput, error) {
	if f.DescribeTargetHealthFn == nil {
		return nil, notImplemented("ELBV2", "DescribeTargetHealth")
	}
	return f.DescribeTargetHealthFn(ctx, in)
}

// CloudFront is a configurable awsapi.CloudFrontAPI.
type CloudFront struct {
	CreateDistributionFn    func(context.Context, *cloudfront.CreateDistributionInput) (*cloudfront.CreateDistributionOutput, error)
	GetDistributionFn       func(context.Context, *cloudfront.GetDistributionInput) (*cloudfront.GetDistributionOutput, error)
	GetDistributionConfigFn func(context.Context, *cloudfront.GetDistributionConfigInput) (*cloudfront.GetDistributionConfigOutput, error)
	UpdateDistributionFn    func(context.Context, *cloudfront.UpdateDistributionInput) (*cloudfront.UpdateDistributionOutput, error)
	DeleteDistributionFn    func(context.Context, *cloudfront.DeleteDistributionInput) (*cloudfront.DeleteDistributionOutput, error)
}

func (f *CloudFront) CreateDistribution(ctx context.Context, in *cloudfront.CreateDistributionInput, _ ...func(*cloudfront.Options)) (*cloudfront.CreateDistributionOutput, error) {
	if f.CreateDistributionFn == nil {
		return nil, notImplemented("CloudFront", "CreateDistribution")
	}
	return f.CreateDistributionFn(ctx, in)
}

func (f *CloudFront) GetDistribution(ctx context.Context, in *cloudfront.GetDistributionInput, _ ...func(*cloudfront.Options)) (*cloudfront.GetDistributionOutput, error) {
	if f.GetDistributionFn == nil {
		return nil, notImplemented("CloudFront", "GetDistribution")
	}
	return f.GetDistributionFn(ctx, in)
}

func (f *CloudFront) GetDistributionConfig(ctx context.Context, in *cloudfront.GetDistributionConfigInput, _ ...func(*cloudfront.Options)) (*cloudfront.GetDistributionConfigOutput, error) {
	if f.GetDistributionConfigFn == nil {
		return nil, notImplemented("CloudFront", "GetDistributionConfig")
	}
	return f.GetDistributionConfigFn(ctx, in)
}

func (f *CloudFront) UpdateDistribution(ctx context.Context, in *cloudfront.UpdateDistributionInput, _ ...func(*cloudfront.Options)) (*cloudfront.UpdateDistributionOutput, error) {
	if f.UpdateDistributionFn == nil {
		return nil, notImplemented("CloudFront", "UpdateDistribution")
	}
	return f.UpdateDistributionFn(ctx, in)
}

func (f *CloudFront) DeleteDistribution(ctx context.Context, in *cloudfront.DeleteDistributionInput, _ ...func(*cloudfront.Options)) (*cloudfront.DeleteDistributionOutput, error) {
	if f.DeleteDistributionFn == nil {
		return nil, notImplemented("CloudFront", "DeleteDistribution")
	}
	return f.DeleteDistributionFn(ctx, in)
}

// IAM is a configurable awsapi.IAMAPI.
type IAM struct {
	CreateRoleFn                    func(context.Context, *iam.CreateRoleInput) (*iam.CreateRoleOutput, error)
	GetRoleFn                       func(context.Context, *iam.GetRoleInput) (*iam.GetRoleOutput, error)
	DeleteRoleFn                    func(context.Context, *iam.DeleteRoleInput) (*iam.DeleteRoleOutput, error)
	PutRolePolicyFn                 func(context.Context, *iam.PutRolePolicyInput) (*iam.PutRolePolicyOutput, error)
	DeleteRolePolicyFn              func(context.Context, *iam.DeleteRolePolicyInput) (*iam.DeleteRolePolicyOutput, error)
	CreateInstanceProfileFn         func(context.Context, *iam.CreateInstanceProfileInput) (*iam.CreateInstanceProfileOutput, error)
	GetInstanceProfileFn            func(context.Context, *iam.GetInstanceProfileInput) (*iam.GetInstanceProfileOutput, error)
	AddRoleToInstanceProfileFn      func(context.Context, *iam.AddRoleToInstanceProfileInput) (*iam.AddRoleToInstanceProfileOutput, error)
	RemoveRoleFromInstanceProfileFn func(context.Context, *iam.RemoveRoleFromInstanceProfileInput) (*iam.RemoveRoleFromInstanceProfileOutput, error)
	DeleteInstanceProfileFn         func(context.Context, *iam.DeleteInstanceProfileInput) (*iam.DeleteInstanceProfileOutput, error)
	SimulatePrincipalPolicyFn       func(context.Context, *iam.SimulatePrincipalPolicyInput) (*iam.SimulatePrincipalPolicyOutput, error)
}

func (f *IAM) CreateRole(ctx context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	if f.CreateRoleFn == nil {
		return nil, notImplemented("IAM", "CreateRole")
	}
	return f.CreateRoleFn(ctx, in)
}

func (f *IAM) GetRole(ctx context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	if f.GetRoleFn == nil {
		return nil, notImplemented("IAM", "GetRole")
	}
	return f.GetRoleFn(ctx, in)
}

func (f *IAM) DeleteRole(ctx context.Context, in *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	if f.DeleteRoleFn == nil {
		return nil, notImplemented("IAM", "DeleteRole")
	}
	return f.DeleteRoleFn(ctx, in)
}

func (f *IAM) PutRolePolicy(ctx context.Context, in *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	if f.PutRolePolicyFn == nil {
		return nil, notImplemented("IAM", "PutRolePolicy")
	}
	return f.PutRolePolicyFn(ctx, in)
}

func (f *IAM) DeleteRolePolicy(ctx context.Context, in *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	if f.DeleteRolePolicyFn == nil {
		return nil, notImplemented("IAM", "DeleteRolePolicy")
	}
	return f.DeleteRolePolicyFn(ctx, in)
}

func (f *IAM) CreateInstanceProfile(ctx context.Context, in *iam.CreateInstanceProfileInput, _ ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error) {
	if f.CreateInstanceProfileFn == nil {
		return nil, notImplemented("IAM", "CreateInstanceProfile")
	}
	return f.CreateInstanceProfileFn(ctx, in)
}

func (f *IAM) GetInstanceProfile(ctx context.Context, in *iam.GetInstanceProfileInput, _ ...func(*iam.Options)) (*iam.GetInstanceProfileOutput, error) {
	if f.GetInstanceProfileFn == nil {
		return nil, notImplemented("IAM", "GetInstanceProfile")
	}
	return f.GetInstanceProfileFn(ctx, in)
}

func (f *IAM) AddRoleToInstanceProfile(ctx context.Context, in *iam.AddRoleToInstanceProfileInput, _ ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error) {
	if f.AddRoleToInstanceProfileFn == nil {
		return nil, notImplemented("IAM", "AddRoleToInstanceProfile")
	}
	return f.AddRoleToInstanceProfileFn(ctx, in)
}

func (f *IAM) RemoveRoleFromInstanceProfile(ctx context.Context, in *iam.RemoveRoleFromInstanceProfileInput, _ ...func(*iam.Options)) (*iam.RemoveRoleFromInstanceProfileOutput, error) {
	if f.RemoveRoleFromInstanceProfileFn == nil {
		return nil, notImplemented("IAM", "RemoveRoleFromInstanceProfile")
	}
	return f.RemoveRoleFromInstanceProfileFn(ctx, in)
}

func (f *IAM) DeleteInstanceProfile(ctx context.Context, in *iam.DeleteInstanceProfileInput, _ ...func(*iam.Options)) (*iam.DeleteInstanceProfileOutput, error) {
	if f.DeleteInstanceProfileFn == nil {
		return nil, notImplemented("IAM", "DeleteInstanceProfile")
	}
	return f.DeleteInstanceProfileFn(ctx, in)
}

func (f *IAM) SimulatePrincipalPolicy(ctx context.Context, in *iam.SimulatePrincipalPolicyInput, _ ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	if f.SimulatePrincipalPolicyFn == nil {
		return nil, notImplemented("IAM", "SimulatePrincipalPolicy")
	}
	return f.SimulatePrincipalPolicyFn(ctx, in)
}

// STS is a configurable awsapi.STSAPI.
type STS struct {
	GetCallerIdentityFn func(context.Context, *sts.GetCallerIdentityInput) (*sts.GetCallerIdentityOutput, error)
}

func (f *STS) GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.GetCallerIdentityFn == nil {
		return nil, notImplemented("STS", "GetCallerIdentity")
	}
	return f.GetCallerIdentityFn(ctx, in)
}

// SSM is a configurable awsapi.SSMAPI.
type SSM struct {
	SendCommandFn          func(context.Context, *ssm.SendCommandInput) (*ssm.SendCommandOutput, error)
	GetCommandInvocationFn func(context.Context, *ssm.GetCommandInvocationInput) (*ssm.GetCommandInvocationOutput, error)
}

func (f *SSM) SendCommand(ctx context.Context, in *ssm.SendCommandInput, _ ...func(*ssm.Options)) (*ssm.SendCommandOutput, error) {
	if f.SendCommandFn == nil {
		return nil, notImplemented("SSM", "SendCommand")
	}
	return f.SendCommandFn(ctx, in)
}

func (f *SSM) GetCommandInvocation(ctx context.Context, in *ssm.GetCommandInvocationInput, _ ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error) {
	if f.GetCommandInvocationFn == nil {
		return nil, notImplemented("SSM", "GetCommandInvocation")
	}
	return f.GetCommandInvocationFn(ctx, in)
}

// Pricing is a configurable awsapi.PricingAPI.
type Pricing struct {
	GetProductsFn func(context.Context, *pricing.GetProductsInput) (*pricing.GetProductsOutput, error)
}

func (f *Pricing) GetProducts(ctx context.Context, in *pricing.GetProductsInput, _ ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	if f.GetProductsFn == nil {
		return nil, notImplemented("Pricing", "GetProducts")
	}
	return f.GetProductsFn(ctx, in)
}

// ServiceQuotas is a configurable awsapi.ServiceQuotasAPI.
type ServiceQuotas struct {
	GetServiceQuotaFn func(context.Context, *servicequotas.GetServiceQuotaInput) (*servicequotas.GetServiceQuotaOutput, error)
}

func (f *ServiceQuotas) GetServiceQuota(ctx context.Context, in *servicequotas.GetServiceQuotaInput, _ ...func(*servicequotas.Options)) (*servicequotas.GetServiceQuotaOutput, error) {
	if f.GetServiceQuotaFn == nil {
		return nil, notImplemented("ServiceQuotas", "GetServiceQuota")
	}
	return f.GetServiceQuotaFn(ctx, in)
}

// Tagging is a configurable awsapi.TaggingAPI.
type Tagging struct {
	GetResourcesFn func(context.Context, *taggingapi.GetResourcesInput) (*taggingapi.GetResourcesOutput, error)
}

func (f *Tagging) GetResources(ctx context.Context, in *taggingapi.GetResourcesInput, _ ...func(*taggingapi.Options)) (*taggingapi.GetResourcesOutput, error) {
	if f.GetResourcesFn == nil {
		return nil, notImplemented("Tagging", "GetResources")
	}
	return f.GetResourcesFn(ctx, in)
}
