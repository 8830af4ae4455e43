package resource

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/geusemaker/geusemaker/support/awsapi"
	"github.com/geusemaker/geusemaker/support/awsutil"
)

// EFSService manages the shared filesystem and its mount targets.
type EFSService struct {
	efs awsapi.EFSAPI
	log logr.Logger
}

// NewEFSService builds an EFSService.
func NewEFSService(client awsapi.EFSAPI, log logr.Logger) *EFSService {
	return &EFSService{efs: client, log: log}
}

// Create provisions an encrypted general-purpose filesystem in bursting
// mode and waits until it is available.
func (s *EFSService) Create(ctx context.Context, stack, tier string) (string, error) {
	out, err := s.efs.CreateFileSystem(ctx, &efs.CreateFileSystemInput{
		CreationToken:   aws.String(stack + "-efs"),
		Encrypted:       aws.Bool(true),
		PerformanceMode: efstypes.PerformanceModeGeneralPurpose,
		ThroughputMode:  efstypes.ThroughputModeBursting,
		Tags:            awsutil.EFSTags(stack, tier, stack+"-efs"),
	})
	if err != nil {
		return "", awsutil.WrapProvider("create filesystem", err)
	}
	fsID := aws.ToString(out.FileSystemId)
	s.log.Info("Created filesystem", "id", fsID)
	if err := s.WaitAvailable(ctx, fsID); err != nil {
		return "", err
	}
	return fsID, nil
}

// WaitAvailable blocks until the filesystem reaches the available state.
func (s *EFSService) WaitAvailable(ctx context.Context, fsID string) error {
	err := wait.PollUntilContextTimeout(ctx, pollInterval, filesystemWaitTimeout, true, func(ctx context.Context) (bool, error) {
		out, err := s.efs.DescribeFileSystems(ctx, &efs.DescribeFileSystemsInput{FileSystemId: aws.String(fsID)})
		if err != nil {
			return false, nil
		}
		if len(out.FileSystems) == 0 {
			return false, nil
		}
		return out.FileSystems[0].LifeCycleState == efstypes.LifeCycleStateAvailable, nil
	})
	if err != nil {
		return fmt.Errorf("filesystem %s never became available: %w", fsID, err)
	}
	s.log.Info("Filesystem is available", "id", fsID)
	return nil
}

// Exists reports whether fsID refers to a live filesystem.
func (s *EFSService) Exists(ctx context.Context, fsID string) (bool, error) {
	out, err := s.efs.DescribeFileSystems(ctx, &efs.DescribeFileSystemsInput{FileSystemId: aws.String(fsID)})
	if err != nil {
		if awsutil.IsErrorCode(err, "FileSystemNotFound") {
			return false, nil
		}
		return false, awsutil.WrapProvider("describe filesystem", err)
	}
	return len(out.FileSystems) > 0, nil
}

// CreateMountTarget attaches the filesystem to a subnet through the given
// security group, waits until the target is available, and returns its id
// and IP.
func (s *EFSService) CreateMountTarget(ctx context.Context, fsID, subnetID, sgID string) (string, string, error) {
	out, err := s.efs.CreateMountTarget(ctx, &efs.CreateMountTargetInput{
		FileSystemId:   aws.String(fsID),
		SubnetId:       aws.String(subnetID),
		SecurityGroups: []string{sgID},
	})
	if err != nil {
		return "", "", awsutil.WrapProvider("create mount target", err)
	}
	mtID := aws.ToString(out.MountTargetId)
	s.log.Info("Created mount target", "id", mtID, "subnet", subnetID)

	var ip string
	err = wait.PollUntilContextTimeout(ctx, pollInterval, mountTargetWaitTimeout, true, func(ctx context.Context) (bool, error) {
		desc, descErr := s.efs.DescribeMountTargets(ctx, &efs.DescribeMountTargetsInput{MountTargetId: aws.String(mtID)})
		if descErr != nil || len(desc.MountTargets) == 0 {
			return false, nil
		}
		mt := desc.MountTargets[0]
		if mt.LifeCycleState != efstypes.LifeCycleStateAvailable {
			return false, nil
		}
		ip = aws.ToString(mt.IpAddress)
		return true, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("mount target %s never became available: %w", mtID, err)
	}
	s.log.Info("Mount target is available", "id", mtID, "ip", ip)
	return mtID, ip, nil
}

// MountTargetIDs lists the filesystem's mount targets.
func (s *EFSService) MountTargetIDs(ctx context.Context, fsID string) ([]string, error) {
	out, err := s.efs.DescribeMountTargets(ctx, &efs.DescribeMountTargetsInput{FileSystemId: aws.String(fsID)})
	if err != nil {
		return nil, awsutil.WrapProvider("list mount targets", err)
	}
	ids := make([]string, 0, len(out.MountTargets))
	for _, mt := range out.MountTargets {
		ids = append(ids, aws.ToString(mt.MountTargetId))
	}
	return ids, nil
}

// MountTargetState returns the lifecycle state of one mount target, or ""
// when it no longer exists.
func (s *EFSService) MountTargetState(ctx context.Context, mtID string) (string, error) {
	out, err := s.efs.DescribeMountTargets(ctx, &efs.DescribeMountTargetsInput{MountTargetId: aws.String(mtID)})
	if err != nil {
		if awsutil.IsErrorCode(err, "MountTargetNotFound") {
			return "", nil
		}
		return "", awsutil.WrapProvider("describe mount target", err)
	}
	if len(out.MountTargets) == 0 {
		return "", nil
	}
	return string(out.MountTargets[0].LifeCycleState), nil
}

// DeleteMountTarget removes one mount target and waits until it is gone.
func (s *EFSService) DeleteMountTarget(ctx context.Context, mtID string) error {
	if _, err := s.efs.DeleteMountTarget(ctx, &efs.DeleteMountTargetInput{MountTargetId: aws.String(mtID)}); err != nil {
		if awsutil.IsErrorCode(err, "MountTargetNotFound") {
			return nil
		}
		return awsutil.WrapProvider(fmt.Sprintf("delete mount target %s", mtID), err)
	}
	err := wait.PollUntilContextTimeout(ctx, pollInterval, mountTargetWaitTimeout, true, func(ctx context.Context) (bool, error) {
		state, stateErr := s.MountTargetState(ctx, mtID)
		if stateErr != nil {
			return false, nil
		}
		return state == "", nil
	})
	if err != nil {
		return fmt.Errorf("mount target %s never finished deleting: %w", mtID, err)
	}
	s.log.Info("Deleted mount target", "id", mtID)
	return nil
}

// Delete removes the filesystem. Mount targets must be gone first.
func (s *EFSService) Delete(ctx context.Context, fsID string) error {
	if _, err := s.efs.DeleteFileSystem(ctx, &efs.DeleteFileSystemInput{FileSystemId: aws.String(fsID)}); err != nil {
		if awsutil.IsErrorCode(err, "FileSystemNotFound") {
			return nil
		}
		return awsutil.WrapProvider(fmt.Sprintf("delete filesystem %s", fsID), err)
	}
	s.log.Info("Deleted filesystem", "id", fsID)
	return nil
}
