package resource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
	"github.com/geusemaker/geusemaker/support/pricing"
)

// gpuFamilyPrefixes identify instance families with GPUs attached; they
// select the GPU-flavoured image patterns.
var gpuFamilyPrefixes = []string{"p3", "p4", "p5e", "p5", "p6", "g3", "g4", "g5g", "g5", "g6e", "g6"}

// IsGPUInstanceType reports whether instanceType belongs to a GPU family.
func IsGPUInstanceType(instanceType string) bool {
	family, _, ok := strings.Cut(instanceType, ".")
	if !ok {
		family = instanceType
	}
	for _, prefix := range gpuFamilyPrefixes {
		if family == prefix {
			return true
		}
	}
	return false
}

// preferredBaseImages pins known-good Linux 2023 base images per region.
// They are validated against the provider before use, so a stale entry
// degrades to the pattern search instead of a broken launch.
var preferredBaseImages = map[string]string{
	"us-east-1":    "ami-0c7217cdde317cfec",
	"us-east-2":    "ami-05fb0b8c1424f266b",
	"us-west-1":    "ami-0ce2cb35386fc22e9",
	"us-west-2":    "ami-008fe2fc65df48dac",
	"eu-west-1":    "ami-0905a3c97561e0b69",
	"eu-central-1": "ami-0faab6bdbac9486fb",
}

// amiSearch describes one ranked pattern group for an image lookup.
type amiSearch struct {
	owner    string
	patterns []string
}

// ubuntuOwner is Canonical's publishing account.
const ubuntuOwner = "099720109477"

// AMIResolver turns (os, architecture, variant, instance kind) into a
// concrete image id.
type AMIResolver struct {
	ec2   awsapi.EC2API
	log   logr.Logger
	cache *pricing.Cache
}

// NewAMIResolver builds a resolver with its own lookup cache.
func NewAMIResolver(client awsapi.EC2API, log logr.Logger) *AMIResolver {
	return &AMIResolver{ec2: client, log: log, cache: pricing.NewCache(pricing.DefaultTTL)}
}

// Resolve returns the image id for the configuration. An explicit image id
// in the config wins outright; otherwise the preferred table is tried for
// base Linux images, then the ranked pattern search.
func (r *AMIResolver) Resolve(ctx context.Context, cfg api.DeploymentConfig) (string, error) {
	if cfg.ImageID != "" {
		return cfg.ImageID, nil
	}
	key := fmt.Sprintf("ami/%s/%s/%s/%s/%s", cfg.Region, cfg.OSType, cfg.Architecture, cfg.ImageVariant, cfg.InstanceType)
	if v, ok := r.cache.Get(key); ok {
		return v.(string), nil
	}

	if cfg.OSType == api.OSAmazonLinux2023 && cfg.ImageVariant == api.VariantBase {
		if id, ok := preferredBaseImages[cfg.Region]; ok {
			if r.imageAvailable(ctx, id) {
				r.cache.Put(key, id)
				return id, nil
			}
			r.log.V(1).Info("Preferred image not available, searching by pattern", "id", id, "region", cfg.Region)
		}
	}

	id, err := r.searchByPattern(ctx, cfg)
	if err != nil {
		return "", err
	}
	r.cache.Put(key, id)
	return id, nil
}

// imageAvailable checks the image exists and is in the available state.
func (r *AMIResolver) imageAvailable(ctx context.Context, imageID string) bool {
	out, err := r.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{imageID}})
	if err != nil || len(out.Images) == 0 {
		return false
	}
	return out.Images[0].State == ec2types.ImageStateAvailable
}

// searchByPattern walks the ranked pattern groups for the configuration
// and returns the newest matching image by creation date.
func (r *AMIResolver) searchByPattern(ctx context.Context, cfg api.DeploymentConfig) (string, error) {
	gpu := IsGPUInstanceType(cfg.InstanceType)
	arch := string(cfg.Architecture)
	if arch == "" {
		arch = string(api.ArchX8664)
	}

	for _, search := range rankedSearches(cfg.OSType, cfg.ImageVariant, gpu, arch) {
		out, err := r.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{
			Owners: []string{search.owner},
			Filters: []ec2types.Filter{
				awsutil.EC2Filter("name", search.patterns...),
				awsutil.EC2Filter("state", "available"),
				awsutil.EC2Filter("architecture", archFilterValue(arch)),
			},
		})
		if err != nil {
			return "", awsutil.WrapProvider("search images", err)
		}
		if len(out.Images) == 0 {
			continue
		}
		images := out.Images
		sort.Slice(images, func(i, j int) bool {
			return aws.ToString(images[i].CreationDate) > aws.ToString(images[j].CreationDate)
		})
		id := aws.ToString(images[0].ImageId)
		r.log.Info("Resolved image", "id", id, "name", aws.ToString(images[0].Name))
		return id, nil
	}
	return "", fmt.Errorf("no image matches os=%s variant=%s arch=%s gpu=%v in %s",
		cfg.OSType, cfg.ImageVariant, arch, gpu, cfg.Region)
}

func archFilterValue(arch string) string {
	if arch == string(api.ArchARM64) {
		return "arm64"
	}
	return "x86_64"
}

// rankedSearches returns the pattern groups for an image lookup, most
// specific first. GPU kinds rank GPU-flavoured patterns ahead of the plain
// ones and CPU kinds the reverse.
func rankedSearches(os api.OSType, variant api.ImageVariant, gpu bool, arch string) []amiSearch {
	var plain, accelerated []amiSearch

	switch os {
	case api.OSUbuntu2204:
		plain = append(plain, amiSearch{owner: ubuntuOwner, patterns: []string{
			"ubuntu/images/hvm-ssd/ubuntu-jammy-22.04-" + ubuntuArch(arch) + "-server-*",
		}})
	case api.OSUbuntu2404:
		plain = append(plain, amiSearch{owner: ubuntuOwner, patterns: []string{
			"ubuntu/images/hvm-ssd-gp3/ubuntu-noble-24.04-" + ubuntuArch(arch) + "-server-*",
		}})
	default:
		plain = append(plain, amiSearch{owner: "amazon", patterns: []string{
			"al2023-ami-2023*-" + arch,
		}})
	}

	switch variant {
	case api.VariantPyTorch:
		accelerated = append(accelerated, amiSearch{owner: "amazon", patterns: []string{
			"Deep Learning OSS Nvidia Driver AMI GPU PyTorch*",
			"Deep Learning AMI GPU PyTorch*",
		}})
	case api.VariantTensorFlow:
		accelerated = append(accelerated, amiSearch{owner: "amazon", patterns: []string{
			"Deep Learning AMI GPU TensorFlow*",
		}})
	case api.VariantMultiFramework:
		accelerated = append(accelerated, amiSearch{owner: "amazon", patterns: []string{
			"Deep Learning AMI GPU*",
			"Deep Learning Base OSS Nvidia Driver GPU AMI*",
		}})
	}

	if gpu {
		if len(accelerated) == 0 {
			// A GPU instance with a base variant still wants drivers.
			accelerated = append(accelerated, amiSearch{owner: "amazon", patterns: []string{
				"Deep Learning Base OSS Nvidia Driver GPU AMI*",
			}})
		}
		return append(accelerated, plain...)
	}
	return append(plain, accelerated...)
}

func ubuntuArch(arch string) string {
	if arch == string(api.ArchARM64) {
		return "arm64"
	}
	return "amd64"
}
