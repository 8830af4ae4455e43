// Package rollback reverts a stack to a prior configuration snapshot.
package rollback

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/lifecycle"
)

// Options collect the rollback flags.
type Options struct {
	Global *util.GlobalOptions
	AWS    util.AWSOptions

	StackName string
	ToVersion int
	Force     bool
}

// NewCommand builds the rollback command.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &Options{Global: global, ToVersion: 1}
	cmd := &cobra.Command{
		Use:          "rollback STACK",
		Short:        "Reverts a stack to a previous configuration snapshot",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	opts.AWS.Bind(flags)
	flags.IntVar(&opts.ToVersion, "to-version", opts.ToVersion, "Snapshot to revert to; 1 is the most recent")
	flags.BoolVar(&opts.Force, "force", false, "Skip the confirmation prompt")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.StackName = args[0]
		return opts.Run(cmd.Context())
	}
	return cmd
}

// Run executes the rollback.
func (o *Options) Run(ctx context.Context) error {
	output, err := o.Global.Printer()
	if err != nil {
		return err
	}
	lg := o.Global.Logger()
	store, err := o.Global.Store(lg)
	if err != nil {
		return err
	}
	st, err := store.Load(ctx, o.StackName)
	if err != nil {
		return fmt.Errorf("cannot load stack %s: %w", o.StackName, err)
	}
	if len(st.PreviousStates) == 0 {
		return fmt.Errorf("stack %s has no snapshots to roll back to", o.StackName)
	}

	prompt := fmt.Sprintf("Roll %s back to snapshot %d of %d?",
		o.StackName, o.ToVersion, len(st.PreviousStates))
	if err := util.GuardDestructive(output, os.Stdin, os.Stdout, o.Force, prompt); err != nil {
		return err
	}

	if st.Config.Region != "" {
		o.AWS.Region = st.Config.Region
	}
	clients, err := o.AWS.Clients(ctx)
	if err != nil {
		return err
	}
	svc := util.NewServices(clients, o.AWS.Region, lg)
	runner := lifecycle.NewCommandRunner(clients.SSM(o.AWS.Region), lg)
	updater := lifecycle.NewUpdater(svc.Instances, svc.Prices, runner, store, lg)

	if err := updater.Rollback(ctx, st, o.ToVersion, "manual"); err != nil {
		if ferr := output.Fail("rollback_failed", err.Error(), nil, nil); ferr != nil {
			return ferr
		}
		return err
	}

	record := st.RollbackHistory[len(st.RollbackHistory)-1]
	output.Textf("Stack %s rolled back to snapshot %d.\n", o.StackName, o.ToVersion)
	output.Textf("  Changes: %v\n", record.RolledBackChanges)
	return output.OK(fmt.Sprintf("stack %s rolled back", o.StackName), st)
}
