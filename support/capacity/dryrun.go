package capacity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/geusemaker/geusemaker/support/awsutil"
)

// HasCapacity probes whether the provider would accept a launch of
// instanceType in zone right now, without launching anything. The provider
// answers a dry-run with an error either way: "would have succeeded" means
// capacity exists, an explicit capacity error means it does not, and any
// other failure is treated as no capacity because a real launch would hit
// the same wall. Results are cached briefly; capacity shifts by the minute.
func (a *Analyzer) HasCapacity(ctx context.Context, instanceType, zone string) (bool, error) {
	key := fmt.Sprintf("capacity/%s/%s", instanceType, zone)
	if v, ok := a.probeCache.Get(key); ok {
		return v.(bool), nil
	}

	imageID, err := a.ResolveImage(ctx)
	if err != nil {
		return false, fmt.Errorf("cannot resolve image for capacity probe: %w", err)
	}

	_, err = a.ec2.RunInstances(ctx, &ec2.RunInstancesInput{
		DryRun:       aws.Bool(true),
		ImageId:      aws.String(imageID),
		InstanceType: ec2types.InstanceType(instanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		Placement:    &ec2types.Placement{AvailabilityZone: aws.String(zone)},
	})

	available := false
	switch {
	case err == nil:
		// A dry-run never succeeds outright; treat it as capacity anyway.
		available = true
	case awsutil.IsErrorCode(err, awsutil.DryRunOperation):
		available = true
	case awsutil.IsErrorCode(err, awsutil.InsufficientInstanceCapacity):
		available = false
	default:
		a.log.V(1).Info("Capacity probe failed", "instanceType", instanceType, "zone", zone, "code", awsutil.AWSErrorCode(err))
		available = false
	}

	a.probeCache.Put(key, available)
	return available, nil
}
