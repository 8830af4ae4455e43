package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/geusemaker/geusemaker/api"
)

// Rollback reverts st to the snapshot at toVersion (1 is the most recent).
// The instance-type change is replayed against the provider; the image set
// is a pure state revert, the instance keeps whatever it is running until
// the next update. trigger names what initiated the revert.
func (u *Updater) Rollback(ctx context.Context, st *api.DeploymentState, toVersion int, trigger string) error {
	if toVersion < 1 || toVersion > len(st.PreviousStates) {
		return fmt.Errorf("version %d is out of range, stack %s has %d snapshots", toVersion, st.StackName, len(st.PreviousStates))
	}
	target := st.PreviousStates[toVersion-1].Snapshot()

	st.PushSnapshot(st.Snapshot())
	st.Status = api.StatusRollingBack
	st.Touch()
	if err := u.store.Save(ctx, st); err != nil {
		return fmt.Errorf("cannot persist rolling-back state: %w", err)
	}

	var changes []string
	if target.Config.InstanceType != st.Config.InstanceType {
		if err := u.resize(ctx, st, target.Config.InstanceType); err != nil {
			u.persistAfterFailure(ctx, st)
			return fmt.Errorf("rollback to version %d failed: %w", toVersion, err)
		}
		changes = append(changes, "instance_type")
	}
	if !sameImages(st.ContainerImages, target.ContainerImages) {
		st.ContainerImages = target.ContainerImages
		changes = append(changes, "container_images")
	}
	st.Config = target.Config

	st.RollbackHistory = append(st.RollbackHistory, api.RollbackRecord{
		Timestamp:            time.Now().UTC(),
		Trigger:              trigger,
		PreviousStateVersion: toVersion,
		RolledBackChanges:    changes,
		Success:              true,
	})
	st.Status = api.StatusRunning
	st.Touch()
	if err := u.store.Save(ctx, st); err != nil {
		return fmt.Errorf("cannot persist rolled-back state: %w", err)
	}
	u.log.Info("Rollback finished", "stack", st.StackName, "toVersion", toVersion, "changes", changes)
	return nil
}

func sameImages(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
