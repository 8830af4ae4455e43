package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/support/awsutil"
	"github.com/geusemaker/geusemaker/support/resource"
)

// simulatedActions is the fixed action list the permission check simulates
// against the caller's principal. It covers every mutating call a full
// Tier-3 deploy makes.
var simulatedActions = []string{
	"ec2:RunInstances",
	"ec2:CreateVpc",
	"ec2:CreateSubnet",
	"ec2:CreateSecurityGroup",
	"ec2:CreateTags",
	"elasticfilesystem:CreateFileSystem",
	"elasticfilesystem:CreateMountTarget",
	"iam:CreateRole",
	"iam:PassRole",
	"elasticloadbalancing:CreateLoadBalancer",
	"cloudfront:CreateDistribution",
	"ssm:SendCommand",
}

// quotaChecks names the service quotas a deploy consumes. Minimums are the
// amounts one stack needs, not comfortable headroom.
var quotaChecks = []struct {
	name    string
	service string
	code    string
	min     float64
}{
	{"running on-demand standard vCPUs", "ec2", "L-1216C47A", 4},
	{"elastic IP addresses", "ec2", "L-0263D0A3", 1},
	{"filesystems per account", "elasticfilesystem", "L-848C634D", 1},
}

// checkCredentials verifies the caller's identity and returns the principal
// ARN for the permission simulation, or "" on failure.
func (v *Validator) checkCredentials(ctx context.Context, report *Report) string {
	out, err := v.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		report.add(Check{
			Name:        "credentials",
			Passed:      false,
			Message:     fmt.Sprintf("cannot resolve caller identity: %v", err),
			Severity:    SeverityError,
			Remediation: "refresh your provider credentials (aws sso login, or rotate the access key)",
		})
		return ""
	}
	c := pass("credentials", "caller identity resolved")
	c.Details = map[string]string{
		"account": aws.ToString(out.Account),
		"arn":     aws.ToString(out.Arn),
	}
	report.add(c)
	return aws.ToString(out.Arn)
}

// checkPermissions simulates the deploy's action list against the caller.
// Explicit and implicit denials both count.
func (v *Validator) checkPermissions(ctx context.Context, report *Report, principalARN string) {
	out, err := v.iam.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: aws.String(principalARN),
		ActionNames:     simulatedActions,
	})
	if err != nil {
		report.add(Check{
			Name:     "permissions",
			Passed:   false,
			Message:  fmt.Sprintf("cannot simulate policies: %v", err),
			Severity: SeverityWarning,
			Details:  map[string]string{"principal": principalARN},
		})
		return
	}
	var denied []string
	for _, res := range out.EvaluationResults {
		if res.EvalDecision != iamtypes.PolicyEvaluationDecisionTypeAllowed {
			denied = append(denied, aws.ToString(res.EvalActionName))
		}
	}
	if len(denied) > 0 {
		report.add(Check{
			Name:        "permissions",
			Passed:      false,
			Message:     fmt.Sprintf("%d of %d required actions denied", len(denied), len(simulatedActions)),
			Severity:    SeverityError,
			Details:     map[string]string{"denied": strings.Join(denied, ", ")},
			Remediation: "attach a policy granting the denied actions to the caller",
		})
		return
	}
	report.add(pass("permissions", fmt.Sprintf("all %d required actions allowed", len(simulatedActions))))
}

// checkQuotas reads the three quotas a deploy consumes. A missing quota
// resource is a warning (the account may predate the quota API); a quota
// genuinely below the minimum is a failure.
func (v *Validator) checkQuotas(ctx context.Context, report *Report) {
	for _, q := range quotaChecks {
		name := "quota:" + q.name
		out, err := v.quotas.GetServiceQuota(ctx, &servicequotas.GetServiceQuotaInput{
			ServiceCode: aws.String(q.service),
			QuotaCode:   aws.String(q.code),
		})
		if err != nil {
			if awsutil.IsErrorCode(err, "NoSuchResourceException") {
				report.add(fail(name, "quota not reported by the provider, skipped", SeverityWarning))
				continue
			}
			report.add(fail(name, fmt.Sprintf("cannot read quota: %v", err), SeverityWarning))
			continue
		}
		value := aws.ToFloat64(out.Quota.Value)
		if value < q.min {
			report.add(Check{
				Name:        name,
				Passed:      false,
				Message:     fmt.Sprintf("quota is %.0f, a deploy needs at least %.0f", value, q.min),
				Severity:    SeverityError,
				Details:     map[string]string{"code": q.code, "service": q.service},
				Remediation: "request a quota increase through the provider console",
			})
			continue
		}
		report.add(pass(name, fmt.Sprintf("quota %.0f covers the required %.0f", value, q.min)))
	}
}

// checkRegionServices confirms the region is enabled for the account and
// smoke-tests the compute, filesystem, and load-balancer services.
func (v *Validator) checkRegionServices(ctx context.Context, report *Report) {
	regionsOut, err := v.ec2.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		report.add(fail("region-services", fmt.Sprintf("cannot list regions: %v", err), SeverityError))
		return
	}
	enabled := false
	for _, r := range regionsOut.Regions {
		if aws.ToString(r.RegionName) == v.region {
			enabled = true
			break
		}
	}
	if !enabled {
		report.add(Check{
			Name:        "region-services",
			Passed:      false,
			Message:     fmt.Sprintf("region %s is not enabled for this account", v.region),
			Severity:    SeverityError,
			Remediation: "enable the region in the account settings or pick another region",
		})
		return
	}

	var issues []string
	if _, err := v.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{}); err != nil {
		issues = append(issues, fmt.Sprintf("compute: %v", err))
	}
	if _, err := v.efs.DescribeFileSystems(ctx, &efs.DescribeFileSystemsInput{MaxItems: aws.Int32(1)}); err != nil {
		issues = append(issues, fmt.Sprintf("filesystem: %v", err))
	}
	if _, err := v.elb.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{PageSize: aws.Int32(1)}); err != nil {
		issues = append(issues, fmt.Sprintf("load balancer: %v", err))
	}
	if len(issues) > 0 {
		report.add(Check{
			Name:     "region-services",
			Passed:   false,
			Message:  fmt.Sprintf("%d service probes failed in %s", len(issues), v.region),
			Severity: SeverityError,
			Details:  map[string]string{"issues": strings.Join(issues, "; ")},
		})
		return
	}
	report.add(pass("region-services", fmt.Sprintf("region %s enabled, service probes ok", v.region)))
}

// checkConfig runs the static configuration rules plus the region-specific
// instance-type offering lookup.
func (v *Validator) checkConfig(ctx context.Context, report *Report, cfg api.DeploymentConfig) {
	if err := cfg.Validate(); err != nil {
		report.add(fail("config", err.Error(), SeverityError))
		return
	}
	out, err := v.ec2.DescribeInstanceTypeOfferings(ctx, &ec2.DescribeInstanceTypeOfferingsInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("instance-type", cfg.InstanceType)},
	})
	if err != nil {
		report.add(fail("config", fmt.Sprintf("cannot check instance type offering: %v", err), SeverityWarning))
		return
	}
	if len(out.InstanceTypeOfferings) == 0 {
		report.add(Check{
			Name:        "config",
			Passed:      false,
			Message:     fmt.Sprintf("instance type %s is not offered in %s", cfg.InstanceType, v.region),
			Severity:    SeverityError,
			Remediation: "pick an instance type offered in the region, or change the region",
		})
		return
	}
	report.add(pass("config", "configuration is valid and the instance type is offered"))
}

// checkNamingConflicts detects a stack name already claimed locally or by a
// tagged network on the provider side.
func (v *Validator) checkNamingConflicts(ctx context.Context, report *Report, cfg api.DeploymentConfig) {
	if v.index.Exists(cfg.StackName) {
		report.add(Check{
			Name:        "naming-conflicts",
			Passed:      false,
			Message:     fmt.Sprintf("a local record for stack %q already exists", cfg.StackName),
			Severity:    SeverityError,
			Remediation: "destroy the existing stack or pick another name",
		})
		return
	}
	vpcID, err := v.networks.FindVPCByNameTag(ctx, cfg.StackName+"-vpc")
	if err != nil {
		report.add(fail("naming-conflicts", fmt.Sprintf("cannot search for named networks: %v", err), SeverityWarning))
		return
	}
	if vpcID != "" && vpcID != cfg.VPCID {
		report.add(Check{
			Name:        "naming-conflicts",
			Passed:      false,
			Message:     fmt.Sprintf("network %s already carries the name %s-vpc", vpcID, cfg.StackName),
			Severity:    SeverityError,
			Details:     map[string]string{"vpc": vpcID},
			Remediation: "pass --vpc-id to reuse the network, or pick another stack name",
		})
		return
	}
	report.add(pass("naming-conflicts", "stack name is unclaimed"))
}

// requiredIngressPorts must be reachable on a reused security group.
var requiredIngressPorts = []int{resource.PortSSH, resource.PortHTTP, api.DefaultServicePorts["n8n"], resource.PortNFS}

// checkExistingNetwork validates a caller-supplied network: availability,
// required tags, subnet membership, and a reused security group's ingress
// rules. The gateway and routing checks report under their own names so a
// network missing both shows both failures.
func (v *Validator) checkExistingNetwork(ctx context.Context, report *Report, cfg api.DeploymentConfig) {
	vpcOut, err := v.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{cfg.VPCID}})
	if err != nil || len(vpcOut.Vpcs) == 0 {
		report.add(fail("existing-network", fmt.Sprintf("network %s not found: %v", cfg.VPCID, err), SeverityError))
		return
	}
	var issues []string
	if vpcOut.Vpcs[0].State != ec2types.VpcStateAvailable {
		issues = append(issues, fmt.Sprintf("network state is %s, not available", vpcOut.Vpcs[0].State))
	}

	v.checkNetworkTags(report, cfg, vpcOut.Vpcs[0].Tags)
	v.checkInternetGateway(ctx, report, cfg)
	v.checkPublicRouting(ctx, report, cfg)

	subnetsOut, err := v.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("vpc-id", cfg.VPCID)},
	})
	if err != nil {
		issues = append(issues, fmt.Sprintf("cannot list subnets: %v", err))
	} else {
		members := map[string]bool{}
		for _, sn := range subnetsOut.Subnets {
			members[aws.ToString(sn.SubnetId)] = true
		}
		if len(members) == 0 {
			issues = append(issues, "network has no subnets")
		}
		for _, id := range append(append([]string{}, cfg.PublicSubnetIDs...), cfg.PrivateSubnetIDs...) {
			if !members[id] {
				issues = append(issues, fmt.Sprintf("subnet %s does not belong to %s", id, cfg.VPCID))
			}
		}
		if cfg.StorageSubnetID != "" && !members[cfg.StorageSubnetID] {
			issues = append(issues, fmt.Sprintf("storage subnet %s does not belong to %s", cfg.StorageSubnetID, cfg.VPCID))
		}
	}

	if cfg.SecurityGroupID != "" {
		v.checkReusedSecurityGroup(ctx, cfg, &issues)
	}

	if len(issues) > 0 {
		report.add(Check{
			Name:     "existing-network",
			Passed:   false,
			Message:  fmt.Sprintf("network %s failed %d topology checks", cfg.VPCID, len(issues)),
			Severity: SeverityError,
			Details:  map[string]string{"issues": strings.Join(issues, "; ")},
		})
		return
	}
	report.add(pass("existing-network", fmt.Sprintf("network %s is usable", cfg.VPCID)))
}

// requiredNetworkTags must be present on a reused network for cleanup to
// rediscover it. Their absence is a warning, not a hard failure: a network
// built outside the tool is still usable.
var requiredNetworkTags = []string{awsutil.TagStack, awsutil.TagDeployment}

func (v *Validator) checkNetworkTags(report *Report, cfg api.DeploymentConfig, tags []ec2types.Tag) {
	present := map[string]bool{}
	for _, tag := range tags {
		present[aws.ToString(tag.Key)] = true
	}
	var missing []string
	for _, key := range requiredNetworkTags {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		report.add(Check{
			Name:        "vpc-tags",
			Passed:      false,
			Message:     fmt.Sprintf("network %s is missing tags: %s", cfg.VPCID, strings.Join(missing, ", ")),
			Severity:    SeverityWarning,
			Details:     map[string]string{"missing": strings.Join(missing, ", ")},
			Remediation: "tag the network with the listed keys so orphan cleanup can discover it",
		})
		return
	}
	report.add(pass("vpc-tags", fmt.Sprintf("network %s carries the required tags", cfg.VPCID)))
}

func (v *Validator) checkInternetGateway(ctx context.Context, report *Report, cfg api.DeploymentConfig) {
	igwOut, err := v.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("attachment.vpc-id", cfg.VPCID)},
	})
	if err != nil {
		report.add(fail("vpc-internet-gateway", fmt.Sprintf("cannot check internet gateway: %v", err), SeverityError))
		return
	}
	if len(igwOut.InternetGateways) == 0 {
		if cfg.AttachInternetGateway {
			report.add(pass("vpc-internet-gateway", "no gateway attached, one will be attached during deploy"))
			return
		}
		report.add(Check{
			Name:        "vpc-internet-gateway",
			Passed:      false,
			Message:     fmt.Sprintf("network %s has no internet gateway attached", cfg.VPCID),
			Severity:    SeverityError,
			Remediation: "pass --attach-internet-gateway to add one",
		})
		return
	}
	report.add(pass("vpc-internet-gateway", "internet gateway attached"))
}

// checkPublicRouting verifies the requested public subnets reach an internet
// gateway through their route tables, falling back to the main table for
// unassociated subnets. Attaching a gateway during deploy also adds the
// default route, so the attach flag satisfies the check.
func (v *Validator) checkPublicRouting(ctx context.Context, report *Report, cfg api.DeploymentConfig) {
	if cfg.AttachInternetGateway {
		report.add(pass("vpc-routes", "default route will be added with the gateway attachment"))
		return
	}
	out, err := v.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{awsutil.EC2Filter("vpc-id", cfg.VPCID)},
	})
	if err != nil {
		report.add(fail("vpc-routes", fmt.Sprintf("cannot list route tables: %v", err), SeverityError))
		return
	}
	mainRouted := false
	routedSubnets := map[string]bool{}
	for _, rt := range out.RouteTables {
		routed := false
		for _, route := range rt.Routes {
			if aws.ToString(route.DestinationCidrBlock) == "0.0.0.0/0" &&
				strings.HasPrefix(aws.ToString(route.GatewayId), "igw-") {
				routed = true
				break
			}
		}
		for _, assoc := range rt.Associations {
			if aws.ToBool(assoc.Main) {
				mainRouted = routed
			}
			if id := aws.ToString(assoc.SubnetId); id != "" {
				routedSubnets[id] = routed
			}
		}
	}

	var unrouted []string
	for _, id := range cfg.PublicSubnetIDs {
		routed, explicit := routedSubnets[id]
		if (explicit && routed) || (!explicit && mainRouted) {
			continue
		}
		unrouted = append(unrouted, id)
	}
	switch {
	case len(unrouted) > 0:
		report.add(Check{
			Name:        "vpc-routes",
			Passed:      false,
			Message:     fmt.Sprintf("%d public subnets have no default route to an internet gateway", len(unrouted)),
			Severity:    SeverityError,
			Details:     map[string]string{"subnets": strings.Join(unrouted, ", ")},
			Remediation: "add a 0.0.0.0/0 route to the gateway, or pass --attach-internet-gateway",
		})
	case len(cfg.PublicSubnetIDs) == 0 && !mainRouted:
		report.add(Check{
			Name:        "vpc-routes",
			Passed:      false,
			Message:     fmt.Sprintf("network %s has no default route to an internet gateway", cfg.VPCID),
			Severity:    SeverityError,
			Remediation: "add a 0.0.0.0/0 route to the gateway, or pass --attach-internet-gateway",
		})
	default:
		report.add(pass("vpc-routes", "public routing reaches an internet gateway"))
	}
}

func (v *Validator) checkReusedSecurityGroup(ctx context.Context, cfg api.DeploymentConfig, issues *[]string) {
	sgVPC, err := v.groups.VPCOf(ctx, cfg.SecurityGroupID)
	if err != nil {
		*issues = append(*issues, fmt.Sprintf("cannot inspect security group %s: %v", cfg.SecurityGroupID, err))
		return
	}
	if sgVPC != cfg.VPCID {
		*issues = append(*issues, fmt.Sprintf("security group %s belongs to %s, not %s", cfg.SecurityGroupID, sgVPC, cfg.VPCID))
		return
	}
	for _, port := range requiredIngressPorts {
		ok, err := v.groups.HasIngressPort(ctx, cfg.SecurityGroupID, port)
		if err != nil {
			*issues = append(*issues, fmt.Sprintf("cannot inspect ingress on %s: %v", cfg.SecurityGroupID, err))
			return
		}
		if !ok {
			*issues = append(*issues, fmt.Sprintf("security group %s does not allow port %d", cfg.SecurityGroupID, port))
		}
	}
}
