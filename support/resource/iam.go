package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
)

// ec2AssumeRolePolicy lets the compute service assume the instance role.
const ec2AssumeRolePolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"Service": "ec2.amazonaws.com"},
      "Action": "sts:AssumeRole"
    }
  ]
}`

// instancePolicy grants what the instance itself needs: mounting the shared
// filesystem and talking to the remote-exec service.
const instancePolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": [
        "elasticfilesystem:ClientMount",
        "elasticfilesystem:ClientWrite",
        "elasticfilesystem:DescribeMountTargets"
      ],
      "Resource": "*"
    },
    {
      "Effect": "Allow",
      "Action": [
        "ssm:UpdateInstanceInformation",
        "ssmmessages:CreateControlChannel",
        "ssmmessages:CreateDataChannel",
        "ssmmessages:OpenControlChannel",
        "ssmmessages:OpenDataChannel",
        "ec2messages:AcknowledgeMessage",
        "ec2messages:GetMessages",
        "ec2messages:SendReply"
      ],
      "Resource": "*"
    }
  ]
}`

// rolePolicyName is the inline policy attached to the instance role.
const rolePolicyName = "geusemaker-instance"

// IAMService manages the instance role and profile.
type IAMService struct {
	iam awsapi.IAMAPI
	log logr.Logger
}

// NewIAMService builds an IAMService.
func NewIAMService(client awsapi.IAMAPI, log logr.Logger) *IAMService {
	return &IAMService{iam: client, log: log}
}

// RoleName and ProfileName derive the identity resource names for a stack.
func RoleName(stack string) string    { return stack + "-instance-role" }
func ProfileName(stack string) string { return stack + "-instance-profile" }

// CreateInstanceIdentity provisions the role and instance profile for
// stack, attaches the role, and waits until the profile lists it. Calls are
// idempotent against already-existing entities.
func (s *IAMService) CreateInstanceIdentity(ctx context.Context, stack, tier string) (string, string, error) {
	roleName, profileName := RoleName(stack), ProfileName(stack)

	_, err := s.iam.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(roleName),
		AssumeRolePolicyDocument: aws.String(ec2AssumeRolePolicy),
		Description:              aws.String(fmt.Sprintf("geusemaker instance role for stack %s", stack)),
	})
	if err != nil && !awsutil.IsErrorCode(err, "EntityAlreadyExists") {
		return "", "", awsutil.WrapProvider("create role", err)
	}
	if err == nil {
		s.log.Info("Created role", "name", roleName)
	}

	if _, err := s.iam.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String(rolePolicyName),
		PolicyDocument: aws.String(instancePolicy),
	}); err != nil {
		return "", "", awsutil.WrapProvider("attach role policy", err)
	}

	_, err = s.iam.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
	})
	if err != nil && !awsutil.IsErrorCode(err, "EntityAlreadyExists") {
		return "", "", awsutil.WrapProvider("create instance profile", err)
	}
	if err == nil {
		s.log.Info("Created instance profile", "name", profileName)
	}

	_, err = s.iam.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
		RoleName:            aws.String(roleName),
	})
	if err != nil && !awsutil.IsErrorCode(err, "LimitExceeded") {
		return "", "", awsutil.WrapProvider("add role to instance profile", err)
	}

	if err := s.waitProfileListsRole(ctx, profileName, roleName); err != nil {
		return "", "", err
	}
	return roleName, profileName, nil
}

// waitProfileListsRole blocks until the profile reports the role attached.
// The identity service is eventually consistent; launching before this
// settles fails with a propagation error.
func (s *IAMService) waitProfileListsRole(ctx context.Context, profileName, roleName string) error {
	err := wait.PollUntilContextTimeout(ctx, 3*time.Second, profileWaitTimeout, true, func(ctx context.Context) (bool, error) {
		out, getErr := s.iam.GetInstanceProfile(ctx, &iam.GetInstanceProfileInput{
			InstanceProfileName: aws.String(profileName),
		})
		if getErr != nil {
			return false, nil
		}
		for _, role := range out.InstanceProfile.Roles {
			if aws.ToString(role.RoleName) == roleName {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("instance profile %s never listed role %s: %w", profileName, roleName, err)
	}
	return nil
}

// DeleteInstanceIdentity tears the profile and role down in dependency
// order. Absent entities are ignored so retries stay idempotent.
func (s *IAMService) DeleteInstanceIdentity(ctx context.Context, stack string) error {
	roleName, profileName := RoleName(stack), ProfileName(stack)

	if _, err := s.iam.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
		RoleName:            aws.String(roleName),
	}); err != nil && !awsutil.IsErrorCode(err, "NoSuchEntity") {
		return awsutil.WrapProvider("remove role from instance profile", err)
	}
	if _, err := s.iam.DeleteInstanceProfile(ctx, &iam.DeleteInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
	}); err != nil && !awsutil.IsErrorCode(err, "NoSuchEntity") {
		return awsutil.WrapProvider("delete instance profile", err)
	}
	if _, err := s.iam.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(rolePolicyName),
	}); err != nil && !awsutil.IsErrorCode(err, "NoSuchEntity") {
		return awsutil.WrapProvider("delete role policy", err)
	}
	if _, err := s.iam.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: aws.String(roleName),
	}); err != nil && !awsutil.IsErrorCode(err, "NoSuchEntity") {
		return awsutil.WrapProvider("delete role", err)
	}
	s.log.Info("Deleted instance identity", "role", roleName, "profile", profileName)
	return nil
}
