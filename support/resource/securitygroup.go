package resource

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
)

// Well-known ports in the deployment's ingress surface.
const (
	PortSSH   = 22
	PortHTTP  = 80
	PortHTTPS = 443
	PortNFS   = 2049
)

// SGService manages the deployment's security group.
type SGService struct {
	ec2 awsapi.EC2API
	log logr.Logger
}

// NewSGService builds an SGService.
func NewSGService(client awsapi.EC2API, log logr.Logger) *SGService {
	return &SGService{ec2: client, log: log}
}

// SGOptions parameterise security group creation.
type SGOptions struct {
	Stack string
	Tier  string
	VPCID string
	// VPCCIDR scopes the filesystem port; NFS never opens to the world.
	VPCCIDR string
	// ServicePort is the primary application port, opened publicly.
	ServicePort int
	EnableHTTPS bool
}

// Create provisions the deployment's security group with ingress for SSH,
// HTTP, the primary service port, NFS restricted to the VPC, and optionally
// HTTPS.
func (s *SGService) Create(ctx context.Context, opts SGOptions) (string, error) {
	out, err := s.ec2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(opts.Stack + "-sg"),
		Description:       aws.String(fmt.Sprintf("geusemaker deployment %s", opts.Stack)),
		VpcId:             aws.String(opts.VPCID),
		TagSpecifications: awsutil.EC2TagSpec(ec2types.ResourceTypeSecurityGroup, opts.Stack, opts.Tier, opts.Stack+"-sg", true),
	})
	if err != nil {
		return "", awsutil.WrapProvider("create security group", err)
	}
	sgID := aws.ToString(out.GroupId)
	s.log.Info("Created security group", "id", sgID)

	perms := []ec2types.IpPermission{
		publicTCP(PortSSH, "SSH"),
		publicTCP(PortHTTP, "HTTP"),
		publicTCP(opts.ServicePort, "primary service"),
		scopedTCP(PortNFS, opts.VPCCIDR, "NFS from VPC"),
	}
	if opts.EnableHTTPS {
		perms = append(perms, publicTCP(PortHTTPS, "HTTPS"))
	}
	if _, err := s.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(sgID),
		IpPermissions: perms,
	}); err != nil {
		return "", awsutil.WrapProvider("authorize security group ingress", err)
	}
	return sgID, nil
}

// EnsureHTTPS makes sure port 443 is open on a reused group. The first call
// adds the rule and returns true; later calls find it and return false.
func (s *SGService) EnsureHTTPS(ctx context.Context, sgID string) (bool, error) {
	has, err := s.HasIngressPort(ctx, sgID, PortHTTPS)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	_, err = s.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(sgID),
		IpPermissions: []ec2types.IpPermission{publicTCP(PortHTTPS, "HTTPS")},
	})
	if err != nil {
		// A concurrent writer may have added the rule between the describe
		// and the authorize.
		if awsutil.IsErrorCode(err, "InvalidPermission.Duplicate") {
			return false, nil
		}
		return false, awsutil.WrapProvider("authorize HTTPS ingress", err)
	}
	s.log.Info("Opened HTTPS on reused security group", "id", sgID)
	return true, nil
}

// HasIngressPort reports whether the group already allows TCP ingress on
// port.
func (s *SGService) HasIngressPort(ctx context.Context, sgID string, port int) (bool, error) {
	out, err := s.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{sgID},
	})
	if err != nil {
		return false, awsutil.WrapProvider("describe security group", err)
	}
	if len(out.SecurityGroups) == 0 {
		return false, fmt.Errorf("security group %s not found", sgID)
	}
	for _, perm := range out.SecurityGroups[0].IpPermissions {
		from, to := aws.ToInt32(perm.FromPort), aws.ToInt32(perm.ToPort)
		if int32(port) >= from && int32(port) <= to {
			return true, nil
		}
	}
	return false, nil
}

// VPCOf returns the VPC a group belongs to; the validator uses it to check
// a reused group actually lives in the reused network.
func (s *SGService) VPCOf(ctx context.Context, sgID string) (string, error) {
	out, err := s.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{sgID}})
	if err != nil {
		return "", awsutil.WrapProvider("describe security group", err)
	}
	if len(out.SecurityGroups) == 0 {
		return "", fmt.Errorf("security group %s not found", sgID)
	}
	return aws.ToString(out.SecurityGroups[0].VpcId), nil
}

// Delete removes the group.
func (s *SGService) Delete(ctx context.Context, sgID string) error {
	if _, err := s.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(sgID)}); err != nil {
		return awsutil.WrapProvider(fmt.Sprintf("delete security group %s", sgID), err)
	}
	s.log.Info("Deleted security group", "id", sgID)
	return nil
}

func publicTCP(port int, desc string) ec2types.IpPermission {
	return ec2types.IpPermission{
		IpProtocol: aws.String("tcp"),
		FromPort:   aws.Int32(int32(port)),
		ToPort:     aws.Int32(int32(port)),
		IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0"), Description: aws.String(desc)}},
	}
}

func scopedTCP(port int, cidr, desc string) ec2types.IpPermission {
	return ec2types.IpPermission{
		IpProtocol: aws.String("tcp"),
		FromPort:   aws.Int32(int32(port)),
		ToPort:     aws.Int32(int32(port)),
		IpRanges:   []ec2types.IpRange{{CidrIp: aws.String(cidr), Description: aws.String(desc)}},
	}
}
