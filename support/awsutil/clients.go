package awsutil

import (
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
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

	"github.com/geusemaker/geusemaker/support/awsapi"
)

// pricingRegion hosts the price catalogue endpoint; the catalogue itself is
// global, queried by location name.
const pricingRegion = "us-east-1"

// ClientSet hands out provider clients cached by (service, region).
// Construction is cheap but not free, and some callers fan out across
// regions, so instances are built once under a lock and reused.
type ClientSet struct {
	cfg aws.Config

	mu         sync.Mutex
	ec2Clients map[string]*ec2.Client
	efsClients map[string]*efs.Client
	elbClients map[string]*elbv2.Client
	cfClient   *cloudfront.Client
	iamClient  *iam.Client
	stsClient  *sts.Client
	ssmClients map[string]*ssm.Client
	priceCli   *pricing.Client
	quotaCli   map[string]*servicequotas.Client
	tagClients map[string]*taggingapi.Client
}

// NewClientSet wraps the resolved provider configuration. The configuration's
// own region is the default; per-call regions override it.
func NewClientSet(cfg aws.Config) *ClientSet {
	return &ClientSet{
		cfg:        cfg,
		ec2Clients: map[string]*ec2.Client{},
		efsClients: map[string]*efs.Client{},
		elbClients: map[string]*elbv2.Client{},
		ssmClients: map[string]*ssm.Client{},
		quotaCli:   map[string]*servicequotas.Client{},
		tagClients: map[string]*taggingapi.Client{},
	}
}

func (s *ClientSet) regional(region string) aws.Config {
	cfg := s.cfg.Copy()
	if region != "" {
		cfg.Region = region
	}
	return cfg
}

// EC2 returns the EC2 client for region ("" = default region).
func (s *ClientSet) EC2(region string) awsapi.EC2API {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.ec2Clients[region]; ok {
		return c
	}
	c := ec2.NewFromConfig(s.regional(region))
	s.ec2Clients[region] = c
	return c
}

// EFS returns the filesystem client for region.
func (s *ClientSet) EFS(region string) awsapi.EFSAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.efsClients[region]; ok {
		return c
	}
	c := efs.NewFromConfig(s.regional(region))
	s.efsClients[region] = c
	return c
}

// ELBV2 returns the load balancer client for region.
func (s *ClientSet) ELBV2(region string) awsapi.ELBV2API {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.elbClients[region]; ok {
		return c
	}
	c := elbv2.NewFromConfig(s.regional(region))
	s.elbClients[region] = c
	return c
}

// CloudFront returns the distribution client. The service is global.
func (s *ClientSet) CloudFront() awsapi.CloudFrontAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfClient == nil {
		s.cfClient = cloudfront.NewFromConfig(s.cfg)
	}
	return s.cfClient
}

// IAM returns the identity client. The service is global.
func (s *ClientSet) IAM() awsapi.IAMAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.iamClient == nil {
		s.iamClient = iam.NewFromConfig(s.cfg)
	}
	return s.iamClient
}

// STS returns the caller-identity client.
func (s *ClientSet) STS() awsapi.STSAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stsClient == nil {
		s.stsClient = sts.NewFromConfig(s.cfg)
	}
	return s.stsClient
}

// SSM returns the remote-exec client for region.
func (s *ClientSet) SSM(region string) awsapi.SSMAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.ssmClients[region]; ok {
		return c
	}
	c := ssm.NewFromConfig(s.regional(region))
	s.ssmClients[region] = c
	return c
}

// Pricing returns the catalogue client, pinned to the catalogue endpoint
// region regardless of where resources live.
func (s *ClientSet) Pricing() awsapi.PricingAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priceCli == nil {
		s.priceCli = pricing.NewFromConfig(s.regional(pricingRegion))
	}
	return s.priceCli
}

// ServiceQuotas returns the quota client for region.
func (s *ClientSet) ServiceQuotas(region string) awsapi.ServiceQuotasAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.quotaCli[region]; ok {
		return c
	}
	c := servicequotas.NewFromConfig(s.regional(region))
	s.quotaCli[region] = c
	return c
}

// Tagging returns the resource-tagging client for region.
func (s *ClientSet) Tagging(region string) awsapi.TaggingAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.tagClients[region]; ok {
		return c
	}
	c := taggingapi.NewFromConfig(s.regional(region))
	s.tagClients[region] = c
	return c
}
