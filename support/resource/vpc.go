package resource

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
)

// DefaultVPCCIDR is the network block new deployments get.
const DefaultVPCCIDR = "10.0.0.0/16"

// Subnet blocks carved out of the VPC CIDR, two public and two private
// across two zones.
var (
	publicSubnetCIDRs  = []string{"10.0.0.0/24", "10.0.1.0/24"}
	privateSubnetCIDRs = []string{"10.0.10.0/24", "10.0.11.0/24"}
)

// VPCService provisions, adopts and deletes the network layer.
type VPCService struct {
	ec2 awsapi.EC2API
	log logr.Logger
}

// NewVPCService builds a VPCService.
func NewVPCService(client awsapi.EC2API, log logr.Logger) *VPCService {
	return &VPCService{ec2: client, log: log}
}

// Network describes the network a deployment runs in, whether created or
// adopted.
type Network struct {
	VPCID            string
	CIDR             string
	PublicSubnetIDs  []string
	PrivateSubnetIDs []string
	// ComputeSubnetID is the public subnet chosen to host the instance.
	ComputeSubnetID string
	// ComputeZone is the availability zone of the compute subnet.
	ComputeZone string
}

// SubnetIDs returns every subnet in the network, public first.
func (n *Network) SubnetIDs() []string {
	return append(append([]string{}, n.PublicSubnetIDs...), n.PrivateSubnetIDs...)
}

// NetworkOptions parameterise network creation.
type NetworkOptions struct {
	Stack string
	Tier  string
	// PreferredZone, when set, hosts the compute subnet; the spot
	// selection supplies it.
	PreferredZone string
}

// CreateNetwork provisions a fresh VPC with two public and two private
// subnets across two zones, an internet gateway, and a default route for
// the public subnets.
func (s *VPCService) CreateNetwork(ctx context.Context, opts NetworkOptions) (*Network, error) {
	zones, err := s.pickZones(ctx, opts.PreferredZone)
	if err != nil {
		return nil, err
	}

	vpcOut, err := s.ec2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(DefaultVPCCIDR),
		TagSpecifications: awsutil.EC2TagSpec(ec2types.ResourceTypeVpc, opts.Stack, opts.Tier, opts.Stack+"-vpc", true),
	})
	if err != nil {
		return nil, awsutil.WrapProvider("create VPC", err)
	}
	vpcID := aws.ToString(vpcOut.Vpc.VpcId)
	s.log.Info("Created VPC", "id", vpcID, "cidr", DefaultVPCCIDR)

	for _, attr := range []*ec2.ModifyVpcAttributeInput{
		{VpcId: aws.String(vpcID), EnableDnsSupport: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)}},
		{VpcId: aws.String(vpcID), EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)}},
	} {
		if _, err := s.ec2.ModifyVpcAttribute(ctx, attr); err != nil {
			return nil, awsutil.WrapProvider("enable VPC DNS attributes", err)
		}
	}

	igwID, err := s.createInternetGateway(ctx, opts, vpcID)
	if err != nil {
		return nil, err
	}

	routeTableID, err := s.createPublicRouteTable(ctx, opts, vpcID, igwID)
	if err != nil {
		return nil, err
	}

	network := &Network{VPCID: vpcID, CIDR: DefaultVPCCIDR}
	for i, cidr := range publicSubnetCIDRs {
		subnetID, err := s.createSubnet(ctx, opts, vpcID, cidr, zones[i], fmt.Sprintf("%s-public-%d", opts.Stack, i), true)
		if err != nil {
			return nil, err
		}
		if _, err := s.ec2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: aws.String(routeTableID),
			SubnetId:     aws.String(subnetID),
		}); err != nil {
			return nil, awsutil.WrapProvider("associate route table", err)
		}
		network.PublicSubnetIDs = append(network.PublicSubnetIDs, subnetID)
		if zones[i] == opts.PreferredZone || network.ComputeSubnetID == "" {
			network.ComputeSubnetID = subnetID
			network.ComputeZone = zones[i]
		}
	}
	for i, cidr := range privateSubnetCIDRs {
		subnetID, err := s.createSubnet(ctx, opts, vpcID, cidr, zones[i], fmt.Sprintf("%s-private-%d", opts.Stack, i), false)
		if err != nil {
			return nil, err
		}
		network.PrivateSubnetIDs = append(network.PrivateSubnetIDs, subnetID)
	}
	return network, nil
}

// pickZones returns the two zones the subnets spread over, with the
// preferred zone first when it exists in the region.
func (s *VPCService) pickZones(ctx context.Context, preferred string) ([]string, error) {
	out, err := s.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("state", "available")},
	})
	if err != nil {
		return nil, awsutil.WrapProvider("list availability zones", err)
	}
	var zones []string
	for _, z := range out.AvailabilityZones {
		zones = append(zones, aws.ToString(z.ZoneName))
	}
	if len(zones) < 2 {
		return nil, fmt.Errorf("region has %d availability zones, need at least 2", len(zones))
	}
	if preferred != "" {
		for i, z := range zones {
			if z == preferred && i != 0 {
				zones[0], zones[i] = zones[i], zones[0]
				break
			}
		}
	}
	return zones[:2], nil
}

func (s *VPCService) createInternetGateway(ctx context.Context, opts NetworkOptions, vpcID string) (string, error) {
	igwOut, err := s.ec2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: awsutil.EC2TagSpec(ec2types.ResourceTypeInternetGateway, opts.Stack, opts.Tier, opts.Stack+"-igw", true),
	})
	if err != nil {
		return "", awsutil.WrapProvider("create internet gateway", err)
	}
	igwID := aws.ToString(igwOut.InternetGateway.InternetGatewayId)
	if _, err := s.ec2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
		VpcId:             aws.String(vpcID),
	}); err != nil {
		return "", awsutil.WrapProvider("attach internet gateway", err)
	}
	s.log.Info("Created internet gateway", "id", igwID)
	return igwID, nil
}

func (s *VPCService) createPublicRouteTable(ctx context.Context, opts NetworkOptions, vpcID, igwID string) (string, error) {
	rtOut, err := s.ec2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             aws.String(vpcID),
		TagSpecifications: awsutil.EC2TagSpec(ec2types.ResourceTypeRouteTable, opts.Stack, opts.Tier, opts.Stack+"-public", true),
	})
	if err != nil {
		return "", awsutil.WrapProvider("create route table", err)
	}
	routeTableID := aws.ToString(rtOut.RouteTable.RouteTableId)
	if _, err := s.ec2.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         aws.String(routeTableID),
		DestinationCidrBlock: aws.String("0.0.0.0/0"),
		GatewayId:            aws.String(igwID),
	}); err != nil {
		return "", awsutil.WrapProvider("create default route", err)
	}
	s.log.Info("Created public route table", "id", routeTableID)
	return routeTableID, nil
}

func (s *VPCService) createSubnet(ctx context.Context, opts NetworkOptions, vpcID, cidr, zone, name string, public bool) (string, error) {
	out, err := s.ec2.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:             aws.String(vpcID),
		CidrBlock:         aws.String(cidr),
		AvailabilityZone:  aws.String(zone),
		TagSpecifications: awsutil.EC2TagSpec(ec2types.ResourceTypeSubnet, opts.Stack, opts.Tier, name, true),
	})
	if err != nil {
		return "", awsutil.WrapProvider("create subnet", err)
	}
	subnetID := aws.ToString(out.Subnet.SubnetId)
	if public {
		if _, err := s.ec2.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            aws.String(subnetID),
			MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		}); err != nil {
			return "", awsutil.WrapProvider("enable public IP assignment", err)
		}
	}
	s.log.Info("Created subnet", "name", name, "id", subnetID, "zone", zone)
	return subnetID, nil
}

// AdoptOptions parameterise adopting a caller-supplied network.
type AdoptOptions struct {
	VPCID            string
	PublicSubnetIDs  []string
	PrivateSubnetIDs []string
	PreferredZone    string
	// AttachInternetGateway permits attaching a gateway when the VPC has
	// none; without it a gateway-less VPC is an error.
	AttachInternetGateway bool
	Stack                 string
	Tier                  string
}

// AdoptNetwork validates and wires up a pre-existing VPC: availability, DNS
// attributes, internet gateway and public routing. It returns the same
// Network shape creation does, with the compute subnet chosen from the
// public set.
func (s *VPCService) AdoptNetwork(ctx context.Context, opts AdoptOptions) (*Network, error) {
	vpcsOut, err := s.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{opts.VPCID}})
	if err != nil {
		return nil, awsutil.WrapProvider("describe VPC", err)
	}
	if len(vpcsOut.Vpcs) == 0 {
		return nil, fmt.Errorf("VPC %s not found", opts.VPCID)
	}
	vpc := vpcsOut.Vpcs[0]
	if vpc.State != ec2types.VpcStateAvailable {
		return nil, fmt.Errorf("VPC %s is %s, expected available", opts.VPCID, vpc.State)
	}

	// DNS support and hostnames must be on for EFS DNS mounting to work
	// inside the VPC; fix them rather than fail.
	for _, attr := range []*ec2.ModifyVpcAttributeInput{
		{VpcId: aws.String(opts.VPCID), EnableDnsSupport: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)}},
		{VpcId: aws.String(opts.VPCID), EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)}},
	} {
		if _, err := s.ec2.ModifyVpcAttribute(ctx, attr); err != nil {
			return nil, awsutil.WrapProvider("enable VPC DNS attributes", err)
		}
	}

	igwID, err := s.internetGatewayOf(ctx, opts.VPCID)
	if err != nil {
		return nil, err
	}
	if igwID == "" {
		if !opts.AttachInternetGateway {
			return nil, fmt.Errorf("VPC %s has no internet gateway; pass --attach-internet-gateway to add one", opts.VPCID)
		}
		igwID, err = s.createInternetGateway(ctx, NetworkOptions{Stack: opts.Stack, Tier: opts.Tier}, opts.VPCID)
		if err != nil {
			return nil, err
		}
	}

	network := &Network{VPCID: opts.VPCID, CIDR: aws.ToString(vpc.CidrBlock)}
	if err := s.resolveAdoptedSubnets(ctx, opts, igwID, network); err != nil {
		return nil, err
	}
	s.log.Info("Adopted existing network", "vpc", opts.VPCID, "computeSubnet", network.ComputeSubnetID, "zone", network.ComputeZone)
	return network, nil
}

// internetGatewayOf returns the id of the gateway attached to vpcID, or "".
func (s *VPCService) internetGatewayOf(ctx context.Context, vpcID string) (string, error) {
	out, err := s.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("attachment.vpc-id", vpcID)},
	})
	if err != nil {
		return "", awsutil.WrapProvider("describe internet gateways", err)
	}
	if len(out.InternetGateways) == 0 {
		return "", nil
	}
	return aws.ToString(out.InternetGateways[0].InternetGatewayId), nil
}

// resolveAdoptedSubnets validates the caller's subnet lists against the VPC
// (or discovers subnets when none were supplied) and picks the compute
// subnet, ensuring it routes to the internet gateway.
func (s *VPCService) resolveAdoptedSubnets(ctx context.Context, opts AdoptOptions, igwID string, network *Network) error {
	subnetsOut, err := s.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("vpc-id", opts.VPCID)},
	})
	if err != nil {
		return awsutil.WrapProvider("describe subnets", err)
	}
	if len(subnetsOut.Subnets) == 0 {
		return fmt.Errorf("VPC %s has no subnets", opts.VPCID)
	}

	inVPC := sets.New[string]()
	zoneOf := map[string]string{}
	publicFlag := map[string]bool{}
	for _, sn := range subnetsOut.Subnets {
		id := aws.ToString(sn.SubnetId)
		inVPC.Insert(id)
		zoneOf[id] = aws.ToString(sn.AvailabilityZone)
		publicFlag[id] = aws.ToBool(sn.MapPublicIpOnLaunch)
	}
	for _, id := range append(append([]string{}, opts.PublicSubnetIDs...), opts.PrivateSubnetIDs...) {
		if !inVPC.Has(id) {
			return fmt.Errorf("subnet %s does not belong to VPC %s", id, opts.VPCID)
		}
	}

	network.PublicSubnetIDs = opts.PublicSubnetIDs
	network.PrivateSubnetIDs = opts.PrivateSubnetIDs
	if len(network.PublicSubnetIDs) == 0 {
		for id, public := range publicFlag {
			if public {
				network.PublicSubnetIDs = append(network.PublicSubnetIDs, id)
			} else {
				network.PrivateSubnetIDs = append(network.PrivateSubnetIDs, id)
			}
		}
	}
	if len(network.PublicSubnetIDs) == 0 {
		return fmt.Errorf("VPC %s has no public subnets to host compute", opts.VPCID)
	}

	network.ComputeSubnetID = network.PublicSubnetIDs[0]
	for _, id := range network.PublicSubnetIDs {
		if zoneOf[id] == opts.PreferredZone {
			network.ComputeSubnetID = id
			break
		}
	}
	network.ComputeZone = zoneOf[network.ComputeSubnetID]

	return s.ensurePublicRoute(ctx, opts.VPCID, network.ComputeSubnetID, igwID)
}

// ensurePublicRoute checks the compute subnet's route table reaches the
// internet gateway, adding the default route to the main table when absent.
func (s *VPCService) ensurePublicRoute(ctx context.Context, vpcID, subnetID, igwID string) error {
	out, err := s.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("vpc-id", vpcID)},
	})
	if err != nil {
		return awsutil.WrapProvider("describe route tables", err)
	}

	var subnetTable, mainTable *ec2types.RouteTable
	for i := range out.RouteTables {
		rt := &out.RouteTables[i]
		for _, assoc := range rt.Associations {
			if aws.ToBool(assoc.Main) {
				mainTable = rt
			}
			if aws.ToString(assoc.SubnetId) == subnetID {
				subnetTable = rt
			}
		}
	}
	effective := subnetTable
	if effective == nil {
		effective = mainTable
	}
	if effective == nil {
		return fmt.Errorf("VPC %s has no route table covering subnet %s", vpcID, subnetID)
	}
	for _, route := range effective.Routes {
		if aws.ToString(route.DestinationCidrBlock) == "0.0.0.0/0" && aws.ToString(route.GatewayId) == igwID {
			return nil
		}
	}
	if _, err := s.ec2.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         effective.RouteTableId,
		DestinationCidrBlock: aws.String("0.0.0.0/0"),
		GatewayId:            aws.String(igwID),
	}); err != nil {
		return awsutil.WrapProvider("create default route", err)
	}
	s.log.Info("Added default route to internet gateway", "routeTable", aws.ToString(effective.RouteTableId))
	return nil
}

// CIDROf returns the CIDR block of vpcID.
func (s *VPCService) CIDROf(ctx context.Context, vpcID string) (string, error) {
	out, err := s.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
	if err != nil {
		return "", awsutil.WrapProvider("describe VPC", err)
	}
	if len(out.Vpcs) == 0 {
		return "", fmt.Errorf("VPC %s not found", vpcID)
	}
	return aws.ToString(out.Vpcs[0].CidrBlock), nil
}

// SubnetsOf lists the subnet ids inside a VPC. Orphan cleanup uses it when
// no deployment record names the subnets.
func (s *VPCService) SubnetsOf(ctx context.Context, vpcID string) ([]string, error) {
	out, err := s.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("vpc-id", vpcID)},
	})
	if err != nil {
		return nil, awsutil.WrapProvider(fmt.Sprintf("describe subnets of %s", vpcID), err)
	}
	ids := make([]string, 0, len(out.Subnets))
	for _, subnet := range out.Subnets {
		ids = append(ids, aws.ToString(subnet.SubnetId))
	}
	return ids, nil
}

// DeleteSubnet removes one subnet.
func (s *VPCService) DeleteSubnet(ctx context.Context, subnetID string) error {
	if _, err := s.ec2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(subnetID)}); err != nil {
		return awsutil.WrapProvider(fmt.Sprintf("delete subnet %s", subnetID), err)
	}
	s.log.Info("Deleted subnet", "id", subnetID)
	return nil
}

// DeleteNetworkDependencies clears what blocks VPC deletion: detached
// network interfaces, attached internet gateways, and non-main route
// tables. Errors are returned but each step is attempted.
func (s *VPCService) DeleteNetworkDependencies(ctx context.Context, vpcID string) error {
	var errs []error

	enisOut, err := s.ec2.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("vpc-id", vpcID)},
	})
	if err != nil {
		errs = append(errs, awsutil.WrapProvider("describe network interfaces", err))
	} else {
		for _, eni := range enisOut.NetworkInterfaces {
			if eni.Attachment != nil && aws.ToString(eni.Attachment.InstanceId) != "" {
				continue
			}
			if _, err := s.ec2.DeleteNetworkInterface(ctx, &ec2.DeleteNetworkInterfaceInput{
				NetworkInterfaceId: eni.NetworkInterfaceId,
			}); err != nil {
				errs = append(errs, awsutil.WrapProvider("delete network interface", err))
			}
		}
	}

	igwsOut, err := s.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("attachment.vpc-id", vpcID)},
	})
	if err != nil {
		errs = append(errs, awsutil.WrapProvider("describe internet gateways", err))
	} else {
		for _, igw := range igwsOut.InternetGateways {
			igwID := aws.ToString(igw.InternetGatewayId)
			if _, err := s.ec2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
				InternetGatewayId: aws.String(igwID),
				VpcId:             aws.String(vpcID),
			}); err != nil {
				errs = append(errs, awsutil.WrapProvider("detach internet gateway", err))
				continue
			}
			if _, err := s.ec2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
				InternetGatewayId: aws.String(igwID),
			}); err != nil {
				errs = append(errs, awsutil.WrapProvider("delete internet gateway", err))
			} else {
				s.log.Info("Deleted internet gateway", "id", igwID)
			}
		}
	}

	rtsOut, err := s.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("vpc-id", vpcID)},
	})
	if err != nil {
		errs = append(errs, awsutil.WrapProvider("describe route tables", err))
	} else {
		for _, rt := range rtsOut.RouteTables {
			main := false
			for _, assoc := range rt.Associations {
				if aws.ToBool(assoc.Main) {
					main = true
				}
			}
			if main {
				continue
			}
			if _, err := s.ec2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{
				RouteTableId: rt.RouteTableId,
			}); err != nil {
				errs = append(errs, awsutil.WrapProvider("delete route table", err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("network dependency cleanup for %s: %w", vpcID, utilerrors.NewAggregate(errs))
	}
	return nil
}

// DeleteVPC removes the VPC itself; dependencies must be gone first.
func (s *VPCService) DeleteVPC(ctx context.Context, vpcID string) error {
	if _, err := s.ec2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(vpcID)}); err != nil {
		return awsutil.WrapProvider(fmt.Sprintf("delete VPC %s", vpcID), err)
	}
	s.log.Info("Deleted VPC", "id", vpcID)
	return nil
}

// FindVPCByNameTag returns the id of a VPC carrying the given Name tag, or
// "" when none exists. The pre-deploy validator uses it to detect naming
// conflicts.
func (s *VPCService) FindVPCByNameTag(ctx context.Context, name string) (string, error) {
	out, err := s.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("tag:"+awsutil.TagName, name)},
	})
	if err != nil {
		return "", awsutil.WrapProvider("describe VPCs by name", err)
	}
	if len(out.Vpcs) == 0 {
		return "", nil
	}
	return aws.ToString(out.Vpcs[0].VpcId), nil
}
