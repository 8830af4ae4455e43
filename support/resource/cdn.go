package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
)

// CDNService manages the Tier-3 distribution in front of the load balancer.
type CDNService struct {
	cf  awsapi.CloudFrontAPI
	log logr.Logger
}

// NewCDNService builds a CDNService.
func NewCDNService(client awsapi.CloudFrontAPI, log logr.Logger) *CDNService {
	return &CDNService{cf: client, log: log}
}

// CDNOptions parameterise distribution creation.
type CDNOptions struct {
	Stack string
	// OriginDNS is the load balancer's DNS name.
	OriginDNS string
	// CertificateARN, when set, serves the distribution under a custom
	// certificate; empty uses the provider default.
	CertificateARN string
}

// Distribution is the provisioned Tier-3 surface.
type Distribution struct {
	ID         string
	DomainName string
}

// Create provisions a distribution with the load balancer as a custom
// https-only origin, redirect-to-https viewers, HTTP/2+3, compression, and
// pass-through TTLs so the application controls caching.
func (s *CDNService) Create(ctx context.Context, opts CDNOptions) (*Distribution, error) {
	originID := opts.Stack + "-alb-origin"
	config := &cftypes.DistributionConfig{
		CallerReference: aws.String(fmt.Sprintf("%s-%d", opts.Stack, time.Now().Unix())),
		Comment:         aws.String(fmt.Sprintf("geusemaker deployment %s", opts.Stack)),
		Enabled:         aws.Bool(true),
		HttpVersion:     cftypes.HttpVersionHttp2and3,
		Origins: &cftypes.Origins{
			Quantity: aws.Int32(1),
			Items: []cftypes.Origin{{
				Id:         aws.String(originID),
				DomainName: aws.String(opts.OriginDNS),
				CustomOriginConfig: &cftypes.CustomOriginConfig{
					HTTPPort:             aws.Int32(PortHTTP),
					HTTPSPort:            aws.Int32(PortHTTPS),
					OriginProtocolPolicy: cftypes.OriginProtocolPolicyHttpsOnly,
					OriginSslProtocols: &cftypes.OriginSslProtocols{
						Quantity: aws.Int32(1),
						Items:    []cftypes.SslProtocol{cftypes.SslProtocolTLSv12},
					},
				},
			}},
		},
		DefaultCacheBehavior: &cftypes.DefaultCacheBehavior{
			TargetOriginId:       aws.String(originID),
			ViewerProtocolPolicy: cftypes.ViewerProtocolPolicyRedirectToHttps,
			Compress:             aws.Bool(true),
			// TTLs of zero pass every request through; the services behind
			// the balancer are dynamic.
			MinTTL:     aws.Int64(0),
			DefaultTTL: aws.Int64(0),
			MaxTTL:     aws.Int64(0),
			ForwardedValues: &cftypes.ForwardedValues{
				QueryString: aws.Bool(true),
				Cookies:     &cftypes.CookiePreference{Forward: cftypes.ItemSelectionAll},
				Headers: &cftypes.Headers{
					Quantity: aws.Int32(1),
					Items:    []string{"*"},
				},
			},
			AllowedMethods: &cftypes.AllowedMethods{
				Quantity: aws.Int32(7),
				Items: []cftypes.Method{
					cftypes.MethodGet, cftypes.MethodHead, cftypes.MethodOptions,
					cftypes.MethodPut, cftypes.MethodPost, cftypes.MethodPatch, cftypes.MethodDelete,
				},
			},
		},
	}
	if opts.CertificateARN != "" {
		config.ViewerCertificate = &cftypes.ViewerCertificate{
			ACMCertificateArn:      aws.String(opts.CertificateARN),
			SSLSupportMethod:       cftypes.SSLSupportMethodSniOnly,
			MinimumProtocolVersion: cftypes.MinimumProtocolVersionTLSv122021,
		}
	} else {
		config.ViewerCertificate = &cftypes.ViewerCertificate{
			CloudFrontDefaultCertificate: aws.Bool(true),
		}
	}

	out, err := s.cf.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{
		DistributionConfig: config,
	})
	if err != nil {
		return nil, awsutil.WrapProvider("create distribution", err)
	}
	dist := &Distribution{
		ID:         aws.ToString(out.Distribution.Id),
		DomainName: aws.ToString(out.Distribution.DomainName),
	}
	s.log.Info("Created distribution", "id", dist.ID, "domain", dist.DomainName)
	return dist, nil
}

// WaitDeployed long-polls until the distribution reaches Deployed.
// Distributions take tens of minutes to converge, so the bound is generous.
func (s *CDNService) WaitDeployed(ctx context.Context, distributionID string) error {
	err := wait.PollUntilContextTimeout(ctx, distributionInterval, distributionTimeout, true, func(ctx context.Context) (bool, error) {
		out, getErr := s.cf.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(distributionID)})
		if getErr != nil {
			return false, nil
		}
		return aws.ToString(out.Distribution.Status) == "Deployed", nil
	})
	if err != nil {
		return fmt.Errorf("distribution %s never reached Deployed: %w", distributionID, err)
	}
	s.log.Info("Distribution is deployed", "id", distributionID)
	return nil
}

// Delete disables the distribution, waits for the disable to converge, then
// removes it. The provider refuses to delete an enabled distribution.
func (s *CDNService) Delete(ctx context.Context, distributionID string) error {
	cfgOut, err := s.cf.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
		Id: aws.String(distributionID),
	})
	if err != nil {
		if awsutil.IsErrorCode(err, "NoSuchDistribution") {
			return nil
		}
		return awsutil.WrapProvider("get distribution config", err)
	}

	if aws.ToBool(cfgOut.DistributionConfig.Enabled) {
		cfgOut.DistributionConfig.Enabled = aws.Bool(false)
		if _, err := s.cf.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
			Id:                 aws.String(distributionID),
			IfMatch:            cfgOut.ETag,
			DistributionConfig: cfgOut.DistributionConfig,
		}); err != nil {
			return awsutil.WrapProvider("disable distribution", err)
		}
		if err := s.WaitDeployed(ctx, distributionID); err != nil {
			return err
		}
	}

	getOut, err := s.cf.GetDistribution(ctx, &cloudfront.GetDistributionInput{Id: aws.String(distributionID)})
	if err != nil {
		return awsutil.WrapProvider("get distribution", err)
	}
	if _, err := s.cf.DeleteDistribution(ctx, &cloudfront.DeleteDistributionInput{
		Id:      aws.String(distributionID),
		IfMatch: getOut.ETag,
	}); err != nil {
		return awsutil.WrapProvider("delete distribution", err)
	}
	s.log.Info("Deleted distribution", "id", distributionID)
	return nil
}
