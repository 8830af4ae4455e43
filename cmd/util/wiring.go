package util

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	"github.com/geusemaker/geusemaker/support/awsutil"
	"github.com/geusemaker/geusemaker/support/pricing"
	"github.com/geusemaker/geusemaker/support/resource"
)

// AWSOptions are the provider flags shared by every AWS-facing command.
type AWSOptions struct {
	Region          string
	CredentialsFile string
	Profile         string
}

// Bind registers the provider flags on a command's flag set.
func (a *AWSOptions) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&a.Region, "region", a.Region, "Provider region")
	flags.StringVar(&a.CredentialsFile, "aws-creds", "", "File with provider credentials")
	flags.StringVar(&a.Profile, "aws-profile", "", "Named profile from the shared config")
}

// Clients resolves provider configuration and returns the cached client set.
func (a *AWSOptions) Clients(ctx context.Context) (*awsutil.ClientSet, error) {
	cfg, err := awsutil.LoadConfig(ctx, awsutil.ConfigOptions{
		Region:          a.Region,
		CredentialsFile: a.CredentialsFile,
		Profile:         a.Profile,
	})
	if err != nil {
		return nil, err
	}
	return awsutil.NewClientSet(cfg), nil
}

// Services bundles the per-region resource services commands wire together.
type Services struct {
	Networks      *resource.VPCService
	Groups        *resource.SGService
	Filesystems   *resource.EFSService
	Identities    *resource.IAMService
	Instances     *resource.InstanceService
	LoadBalancers *resource.LBService
	Distributions *resource.CDNService
	Images        *resource.AMIResolver
	Prices        *pricing.Service
}

// NewServices builds the service bundle for one region.
func NewServices(clients *awsutil.ClientSet, region string, lg logr.Logger) *Services {
	ec2 := clients.EC2(region)
	return &Services{
		Networks:      resource.NewVPCService(ec2, lg),
		Groups:        resource.NewSGService(ec2, lg),
		Filesystems:   resource.NewEFSService(clients.EFS(region), lg),
		Identities:    resource.NewIAMService(clients.IAM(), lg),
		Instances:     resource.NewInstanceService(ec2, lg),
		LoadBalancers: resource.NewLBService(clients.ELBV2(region), lg),
		Distributions: resource.NewCDNService(clients.CloudFront(), lg),
		Images:        resource.NewAMIResolver(ec2, lg),
		Prices:        pricing.New(region, clients.Pricing(), ec2, pricing.NewCache(pricing.DefaultTTL), lg),
	}
}
