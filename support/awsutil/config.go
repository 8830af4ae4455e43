// Package awsutil loads provider configuration, caches per-region service
// clients, and normalises provider errors for the rest of the tool.
package awsutil

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/config"
	smithymiddleware "github.com/aws/smithy-go/middleware"

	"github.com/geusemaker/geusemaker/support/version"
)

// ConfigOptions select how provider credentials and the region are resolved.
type ConfigOptions struct {
	// Region is required; every cross-region client derives from it.
	Region string
	// CredentialsFile, when set, overrides the default shared-credentials
	// chain.
	CredentialsFile string
	// Profile selects a named profile from the shared config.
	Profile string
}

// LoadConfig resolves provider configuration with the standard chain
// (environment, shared config, instance metadata), stamping the tool's
// user agent on every request.
func LoadConfig(ctx context.Context, opts ConfigOptions) (aws.Config, error) {
	if opts.Region == "" {
		return aws.Config{}, fmt.Errorf("region is required")
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
		config.WithAPIOptions([]func(*smithymiddleware.Stack) error{
			awsmiddleware.AddUserAgentKeyValue("geusemaker", version.Version),
		}),
	}
	if opts.CredentialsFile != "" {
		loadOpts = append(loadOpts, config.WithSharedCredentialsFiles([]string{opts.CredentialsFile}))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("cannot load provider configuration: %w", err)
	}
	return cfg, nil
}
