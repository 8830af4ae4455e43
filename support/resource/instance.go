package resource

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
)

// Root volume the launched instance boots from.
const (
	rootVolumeSizeGiB = 75
	rootVolumeType    = ec2types.VolumeTypeGp3
	defaultRootDevice = "/dev/xvda"
)

// InstanceService launches and manages the deployment's compute instance.
type InstanceService struct {
	ec2 awsapi.EC2API
	log logr.Logger
}

// NewInstanceService builds an InstanceService.
func NewInstanceService(client awsapi.EC2API, log logr.Logger) *InstanceService {
	return &InstanceService{ec2: client, log: log}
}

// LaunchOptions parameterise an instance launch.
type LaunchOptions struct {
	Stack        string
	Tier         string
	ImageID      string
	InstanceType string
	SubnetID     string
	// Zone pins placement; empty lets the subnet decide.
	Zone            string
	SecurityGroupID string
	// ProfileName attaches the instance profile by name.
	ProfileName string
	KeyName     string
	// UserData is the compressed initialisation payload, already bounded
	// by the provider limit.
	UserData []byte
	// Spot requests a one-time spot instance instead of on-demand.
	Spot bool
}

// Instance is the launched compute as the rest of the tool sees it.
type Instance struct {
	ID        string
	PublicIP  string
	PrivateIP string
	Zone      string
}

// Launch starts the instance and waits until it is running, retrying the
// launch itself while the freshly created instance profile propagates.
func (s *InstanceService) Launch(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(opts.ImageID),
		InstanceType: ec2types.InstanceType(opts.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		SubnetId:     aws.String(opts.SubnetID),
		SecurityGroupIds: []string{
			opts.SecurityGroupID,
		},
		IamInstanceProfile: &ec2types.IamInstanceProfileSpecification{
			Name: aws.String(opts.ProfileName),
		},
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{{
			DeviceName: aws.String(s.rootDeviceName(ctx, opts.ImageID)),
			Ebs: &ec2types.EbsBlockDevice{
				VolumeSize:          aws.Int32(rootVolumeSizeGiB),
				VolumeType:          rootVolumeType,
				Encrypted:           aws.Bool(true),
				DeleteOnTermination: aws.Bool(true),
			},
		}},
		TagSpecifications: awsutil.EC2TagSpec(ec2types.ResourceTypeInstance, opts.Stack, opts.Tier, opts.Stack, false),
	}
	if opts.Zone != "" {
		input.Placement = &ec2types.Placement{AvailabilityZone: aws.String(opts.Zone)}
	}
	if opts.KeyName != "" {
		input.KeyName = aws.String(opts.KeyName)
	}
	if len(opts.UserData) > 0 {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString(opts.UserData))
	}
	if opts.Spot {
		input.InstanceMarketOptions = &ec2types.InstanceMarketOptionsRequest{
			MarketType: ec2types.MarketTypeSpot,
			SpotOptions: &ec2types.SpotMarketOptions{
				SpotInstanceType:             ec2types.SpotInstanceTypeOneTime,
				InstanceInterruptionBehavior: ec2types.InstanceInterruptionBehaviorTerminate,
			},
		}
	}

	var instanceID string
	err := retry.OnError(identityRetryBackoff, awsutil.IsIdentityPropagationError, func() error {
		out, runErr := s.ec2.RunInstances(ctx, input)
		if runErr != nil {
			return runErr
		}
		if len(out.Instances) == 0 {
			return fmt.Errorf("launch returned no instances")
		}
		instanceID = aws.ToString(out.Instances[0].InstanceId)
		return nil
	})
	if err != nil {
		return nil, awsutil.WrapProvider("launch instance", err)
	}
	s.log.Info("Launched instance", "id", instanceID, "type", opts.InstanceType, "spot", opts.Spot)

	if err := s.WaitState(ctx, instanceID, ec2types.InstanceStateNameRunning); err != nil {
		return nil, err
	}
	return s.Describe(ctx, instanceID)
}

// rootDeviceName asks the image which device it boots from, defaulting when
// the lookup fails.
func (s *InstanceService) rootDeviceName(ctx context.Context, imageID string) string {
	out, err := s.ec2.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{imageID}})
	if err != nil || len(out.Images) == 0 || aws.ToString(out.Images[0].RootDeviceName) == "" {
		return defaultRootDevice
	}
	return aws.ToString(out.Images[0].RootDeviceName)
}

// Describe returns the instance's identity and addresses.
func (s *InstanceService) Describe(ctx context.Context, instanceID string) (*Instance, error) {
	out, err := s.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		return nil, awsutil.WrapProvider("describe instance", err)
	}
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			instance := &Instance{
				ID:        aws.ToString(inst.InstanceId),
				PublicIP:  aws.ToString(inst.PublicIpAddress),
				PrivateIP: aws.ToString(inst.PrivateIpAddress),
			}
			if inst.Placement != nil {
				instance.Zone = aws.ToString(inst.Placement.AvailabilityZone)
			}
			return instance, nil
		}
	}
	return nil, fmt.Errorf("instance %s not found", instanceID)
}

// State returns the instance's lifecycle state, or "" when the instance no
// longer exists.
func (s *InstanceService) State(ctx context.Context, instanceID string) (ec2types.InstanceStateName, error) {
	out, err := s.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}})
	if err != nil {
		if awsutil.IsErrorCode(err, "InvalidInstanceID.NotFound") {
			return "", nil
		}
		return "", awsutil.WrapProvider("describe instance", err)
	}
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if inst.State != nil {
				return inst.State.Name, nil
			}
		}
	}
	return "", nil
}

// WaitState blocks until the instance reaches the target state.
func (s *InstanceService) WaitState(ctx context.Context, instanceID string, target ec2types.InstanceStateName) error {
	err := wait.PollUntilContextTimeout(ctx, pollInterval, instanceWaitTimeout, true, func(ctx context.Context) (bool, error) {
		state, stateErr := s.State(ctx, instanceID)
		if stateErr != nil {
			return false, nil
		}
		if target == ec2types.InstanceStateNameTerminated && state == "" {
			// A fully terminated instance eventually vanishes from describe.
			return true, nil
		}
		return state == target, nil
	})
	if err != nil {
		return fmt.Errorf("instance %s never reached state %s: %w", instanceID, target, err)
	}
	s.log.Info("Instance reached state", "id", instanceID, "state", target)
	return nil
}

// Stop halts the instance and waits until it is stopped.
func (s *InstanceService) Stop(ctx context.Context, instanceID string) error {
	if _, err := s.ec2.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{instanceID}}); err != nil {
		return awsutil.WrapProvider("stop instance", err)
	}
	return s.WaitState(ctx, instanceID, ec2types.InstanceStateNameStopped)
}

// Start boots a stopped instance and waits until it is running.
func (s *InstanceService) Start(ctx context.Context, instanceID string) error {
	if _, err := s.ec2.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{instanceID}}); err != nil {
		return awsutil.WrapProvider("start instance", err)
	}
	return s.WaitState(ctx, instanceID, ec2types.InstanceStateNameRunning)
}

// ChangeType rewrites the instance type of a stopped instance.
func (s *InstanceService) ChangeType(ctx context.Context, instanceID, instanceType string) error {
	_, err := s.ec2.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:   aws.String(instanceID),
		InstanceType: &ec2types.AttributeValue{Value: aws.String(instanceType)},
	})
	if err != nil {
		return awsutil.WrapProvider("modify instance type", err)
	}
	s.log.Info("Changed instance type", "id", instanceID, "type", instanceType)
	return nil
}

// Terminate shuts the instance down for good and waits until it is gone.
func (s *InstanceService) Terminate(ctx context.Context, instanceID string) error {
	if _, err := s.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{instanceID}}); err != nil {
		if awsutil.IsErrorCode(err, "InvalidInstanceID.NotFound") {
			return nil
		}
		return awsutil.WrapProvider("terminate instance", err)
	}
	return s.WaitState(ctx, instanceID, ec2types.InstanceStateNameTerminated)
}

// StatusChecksOK reports whether both provider status checks pass.
func (s *InstanceService) StatusChecksOK(ctx context.Context, instanceID string) (bool, error) {
	out, err := s.ec2.DescribeInstanceStatus(ctx, &ec2.DescribeInstanceStatusInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return false, awsutil.WrapProvider("describe instance status", err)
	}
	if len(out.InstanceStatuses) == 0 {
		return false, nil
	}
	st := out.InstanceStatuses[0]
	return st.InstanceStatus != nil && st.InstanceStatus.Status == ec2types.SummaryStatusOk &&
		st.SystemStatus != nil && st.SystemStatus.Status == ec2types.SummaryStatusOk, nil
}

// KeypairExists reports whether a named keypair exists in the region.
func (s *InstanceService) KeypairExists(ctx context.Context, name string) (bool, error) {
	out, err := s.ec2.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{KeyNames: []string{name}})
	if err != nil {
		if awsutil.IsErrorCode(err, "InvalidKeyPair.NotFound") {
			return false, nil
		}
		return false, awsutil.WrapProvider("describe key pairs", err)
	}
	return len(out.KeyPairs) > 0, nil
}

// EnsureKeypair creates the named keypair when it does not exist yet. The
// private key material is only available on creation; the caller must
// persist it immediately or it is lost.
func (s *InstanceService) EnsureKeypair(ctx context.Context, name string) (created bool, material string, err error) {
	exists, err := s.KeypairExists(ctx, name)
	if err != nil {
		return false, "", err
	}
	if exists {
		return false, "", nil
	}
	out, err := s.ec2.CreateKeyPair(ctx, &ec2.CreateKeyPairInput{
		KeyName: aws.String(name),
		KeyType: ec2types.KeyTypeEd25519,
	})
	if err != nil {
		return false, "", awsutil.WrapProvider("create key pair", err)
	}
	s.log.Info("Created keypair", "name", name)
	return true, aws.ToString(out.KeyMaterial), nil
}

// DeleteKeypair removes a keypair; a missing keypair is not an error.
func (s *InstanceService) DeleteKeypair(ctx context.Context, name string) error {
	if _, err := s.ec2.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{KeyName: aws.String(name)}); err != nil {
		if awsutil.IsErrorCode(err, "InvalidKeyPair.NotFound") {
			return nil
		}
		return awsutil.WrapProvider("delete key pair", err)
	}
	s.log.Info("Deleted keypair", "name", name)
	return nil
}
