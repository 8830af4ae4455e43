package resource

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
)

// Target group health check thresholds.
const (
	healthyThreshold    = 2
	unhealthyThreshold  = 3
	healthCheckInterval = 30
)

// LBService manages the Tier-2 load balancer, target group and listeners.
type LBService struct {
	elb awsapi.ELBV2API
	log logr.Logger
}

// NewLBService builds an LBService.
func NewLBService(client awsapi.ELBV2API, log logr.Logger) *LBService {
	return &LBService{elb: client, log: log}
}

// LBOptions parameterise load balancer creation.
type LBOptions struct {
	Stack string
	Tier  string
	VPCID string
	// SubnetIDs must span at least two zones; the provider enforces it.
	SubnetIDs       []string
	SecurityGroupID string
	// CertificateARN enables the HTTPS listener.
	CertificateARN string
	// HTTPSRedirect adds an HTTP listener that redirects to HTTPS.
	HTTPSRedirect bool
}

// LoadBalancer is the provisioned Tier-2 surface.
type LoadBalancer struct {
	ARN            string
	DNSName        string
	TargetGroupARN string
}

// Create provisions the load balancer, its target group with HTTP health
// checks against /, and listeners according to the certificate settings.
func (s *LBService) Create(ctx context.Context, opts LBOptions) (*LoadBalancer, error) {
	if len(opts.SubnetIDs) < 2 {
		return nil, fmt.Errorf("load balancer needs at least 2 subnets, got %d", len(opts.SubnetIDs))
	}

	lbOut, err := s.elb.CreateLoadBalancer(ctx, &elbv2.CreateLoadBalancerInput{
		Name:           aws.String(opts.Stack + "-alb"),
		Type:           elbv2types.LoadBalancerTypeEnumApplication,
		Scheme:         elbv2types.LoadBalancerSchemeEnumInternetFacing,
		Subnets:        opts.SubnetIDs,
		SecurityGroups: []string{opts.SecurityGroupID},
		Tags:           awsutil.ELBV2Tags(opts.Stack, opts.Tier),
	})
	if err != nil {
		return nil, awsutil.WrapProvider("create load balancer", err)
	}
	if len(lbOut.LoadBalancers) == 0 {
		return nil, fmt.Errorf("create load balancer returned nothing")
	}
	lb := &LoadBalancer{
		ARN:     aws.ToString(lbOut.LoadBalancers[0].LoadBalancerArn),
		DNSName: aws.ToString(lbOut.LoadBalancers[0].DNSName),
	}
	s.log.Info("Created load balancer", "arn", lb.ARN, "dns", lb.DNSName)

	tgOut, err := s.elb.CreateTargetGroup(ctx, &elbv2.CreateTargetGroupInput{
		Name:                       aws.String(opts.Stack + "-tg"),
		Protocol:                   elbv2types.ProtocolEnumHttp,
		Port:                       aws.Int32(PortHTTP),
		VpcId:                      aws.String(opts.VPCID),
		TargetType:                 elbv2types.TargetTypeEnumInstance,
		HealthCheckPath:            aws.String("/"),
		HealthCheckIntervalSeconds: aws.Int32(healthCheckInterval),
		HealthyThresholdCount:      aws.Int32(healthyThreshold),
		UnhealthyThresholdCount:    aws.Int32(unhealthyThreshold),
	})
	if err != nil {
		return nil, awsutil.WrapProvider("create target group", err)
	}
	if len(tgOut.TargetGroups) == 0 {
		return nil, fmt.Errorf("create target group returned nothing")
	}
	lb.TargetGroupARN = aws.ToString(tgOut.TargetGroups[0].TargetGroupArn)

	forward := []elbv2types.Action{{
		Type:           elbv2types.ActionTypeEnumForward,
		TargetGroupArn: aws.String(lb.TargetGroupARN),
	}}
	if opts.CertificateARN != "" {
		if _, err := s.elb.CreateListener(ctx, &elbv2.CreateListenerInput{
			LoadBalancerArn: aws.String(lb.ARN),
			Protocol:        elbv2types.ProtocolEnumHttps,
			Port:            aws.Int32(PortHTTPS),
			Certificates:    []elbv2types.Certificate{{CertificateArn: aws.String(opts.CertificateARN)}},
			DefaultActions:  forward,
		}); err != nil {
			return nil, awsutil.WrapProvider("create HTTPS listener", err)
		}
		if opts.HTTPSRedirect {
			if _, err := s.elb.CreateListener(ctx, &elbv2.CreateListenerInput{
				LoadBalancerArn: aws.String(lb.ARN),
				Protocol:        elbv2types.ProtocolEnumHttp,
				Port:            aws.Int32(PortHTTP),
				DefaultActions: []elbv2types.Action{{
					Type: elbv2types.ActionTypeEnumRedirect,
					RedirectConfig: &elbv2types.RedirectActionConfig{
						Protocol:   aws.String("HTTPS"),
						Port:       aws.String("443"),
						StatusCode: elbv2types.RedirectActionStatusCodeEnumHttp301,
					},
				}},
			}); err != nil {
				return nil, awsutil.WrapProvider("create redirect listener", err)
			}
		}
	} else {
		if _, err := s.elb.CreateListener(ctx, &elbv2.CreateListenerInput{
			LoadBalancerArn: aws.String(lb.ARN),
			Protocol:        elbv2types.ProtocolEnumHttp,
			Port:            aws.Int32(PortHTTP),
			DefaultActions:  forward,
		}); err != nil {
			return nil, awsutil.WrapProvider("create HTTP listener", err)
		}
	}
	return lb, nil
}

// RegisterInstance attaches the instance to the target group and waits for
// it to become healthy.
func (s *LBService) RegisterInstance(ctx context.Context, targetGroupARN, instanceID string) error {
	if _, err := s.elb.RegisterTargets(ctx, &elbv2.RegisterTargetsInput{
		TargetGroupArn: aws.String(targetGroupARN),
		Targets:        []elbv2types.TargetDescription{{Id: aws.String(instanceID)}},
	}); err != nil {
		return awsutil.WrapProvider("register target", err)
	}

	err := wait.PollUntilContextTimeout(ctx, pollInterval, targetHealthTimeout, true, func(ctx context.Context) (bool, error) {
		out, descErr := s.elb.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
			TargetGroupArn: aws.String(targetGroupARN),
			Targets:        []elbv2types.TargetDescription{{Id: aws.String(instanceID)}},
		})
		if descErr != nil || len(out.TargetHealthDescriptions) == 0 {
			return false, nil
		}
		return out.TargetHealthDescriptions[0].TargetHealth.State == elbv2types.TargetHealthStateEnumHealthy, nil
	})
	if err != nil {
		return fmt.Errorf("instance %s never became healthy behind the load balancer: %w", instanceID, err)
	}
	s.log.Info("Instance is healthy behind load balancer", "instance", instanceID)
	return nil
}

// Delete removes the load balancer and target group.
func (s *LBService) Delete(ctx context.Context, arn, targetGroupARN string) error {
	if arn != "" {
		if _, err := s.elb.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{
			LoadBalancerArn: aws.String(arn),
		}); err != nil && !awsutil.IsErrorCode(err, "LoadBalancerNotFound") {
			return awsutil.WrapProvider("delete load balancer", err)
		}
	}
	if targetGroupARN != "" {
		if _, err := s.elb.DeleteTargetGroup(ctx, &elbv2.DeleteTargetGroupInput{
			TargetGroupArn: aws.String(targetGroupARN),
		}); err != nil && !awsutil.IsErrorCode(err, "TargetGroupNotFound") {
			return awsutil.WrapProvider("delete target group", err)
		}
	}
	s.log.Info("Deleted load balancer", "arn", arn)
	return nil
}
