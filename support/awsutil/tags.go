package awsutil

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

// Tag keys applied to every resource the tool creates. Cleanup rediscovers
// orphans by these keys, so they must stay stable across releases.
const (
	TagStack      = "Stack"
	TagTier       = "Tier"
	TagName       = "Name"
	TagDeployment = "geusemaker:deployment"
	TagTierScoped = "geusemaker:tier"
)

// EC2Tags builds the standard tag set for one EC2 resource. Networking
// resources additionally carry the namespaced discovery keys.
func EC2Tags(stack, tier, name string, network bool) []ec2types.Tag {
	tags := []ec2types.Tag{
		{Key: aws.String(TagStack), Value: aws.String(stack)},
		{Key: aws.String(TagTier), Value: aws.String(tier)},
	}
	if name != "" {
		tags = append(tags, ec2types.Tag{Key: aws.String(TagName), Value: aws.String(name)})
	}
	if network {
		tags = append(tags,
			ec2types.Tag{Key: aws.String(TagDeployment), Value: aws.String(stack)},
			ec2types.Tag{Key: aws.String(TagTierScoped), Value: aws.String(tier)},
		)
	}
	return tags
}

// EC2TagSpec wraps EC2Tags in the TagSpecification shape create calls take.
func EC2TagSpec(resourceType ec2types.ResourceType, stack, tier, name string, network bool) []ec2types.TagSpecification {
	return []ec2types.TagSpecification{{
		ResourceType: resourceType,
		Tags:         EC2Tags(stack, tier, name, network),
	}}
}

// EC2Filter builds one describe filter.
func EC2Filter(name string, values ...string) ec2types.Filter {
	return ec2types.Filter{Name: aws.String(name), Values: values}
}

// StackFilters match resources created for the given stack, used by
// idempotent lookups before creating anything.
func StackFilters(stack string, extra ...ec2types.Filter) []ec2types.Filter {
	filters := []ec2types.Filter{EC2Filter("tag:"+TagStack, stack)}
	return append(filters, extra...)
}

// EFSTags builds the standard tag set for a filesystem.
func EFSTags(stack, tier, name string) []efstypes.Tag {
	return []efstypes.Tag{
		{Key: aws.String(TagStack), Value: aws.String(stack)},
		{Key: aws.String(TagTier), Value: aws.String(tier)},
		{Key: aws.String(TagName), Value: aws.String(name)},
		{Key: aws.String(TagDeployment), Value: aws.String(stack)},
	}
}

// ELBV2Tags builds the standard tag set for load balancer resources.
func ELBV2Tags(stack, tier string) []elbv2types.Tag {
	return []elbv2types.Tag{
		{Key: aws.String(TagStack), Value: aws.String(stack)},
		{Key: aws.String(TagTier), Value: aws.String(tier)},
	}
}
