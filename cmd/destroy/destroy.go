// Package destroy tears a stack down and archives its record.
package destroy

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/teardown"
)

// Options collect the destroy flags.
type Options struct {
	Global *util.GlobalOptions
	AWS    util.AWSOptions

	StackName   string
	Force       bool
	DryRun      bool
	PreserveEFS bool
}

// NewCommand builds the destroy command.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &Options{Global: global}
	cmd := &cobra.Command{
		Use:          "destroy STACK",
		Short:        "Destroys a stack's resources in reverse-dependency order",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	opts.AWS.Bind(flags)
	flags.BoolVar(&opts.Force, "force", false, "Skip the confirmation prompt")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "Report what would be deleted without deleting")
	flags.BoolVar(&opts.PreserveEFS, "preserve-efs", false, "Keep the filesystem and its data")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.StackName = args[0]
		return opts.Run(cmd.Context())
	}
	return cmd
}

// Run executes the destruction.
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

	if !o.DryRun {
		prompt := fmt.Sprintf("Destroy stack %s and all its resources?", o.StackName)
		if err := util.GuardDestructive(output, os.Stdin, os.Stdout, o.Force, prompt); err != nil {
			return err
		}
	}

	// The record's own region wins; the flag only fills the gap for records
	// that predate region tracking.
	if st.Config.Region != "" {
		o.AWS.Region = st.Config.Region
	}
	clients, err := o.AWS.Clients(ctx)
	if err != nil {
		return err
	}
	svc := util.NewServices(clients, o.AWS.Region, lg)
	destroyer := teardown.NewDestroyer(svc.Instances, svc.Filesystems, svc.Groups, svc.Networks,
		svc.LoadBalancers, svc.Distributions, svc.Identities, store, lg)

	result := destroyer.Destroy(ctx, st, teardown.Options{DryRun: o.DryRun, PreserveEFS: o.PreserveEFS})

	verb := "destroyed"
	if o.DryRun {
		verb = "would destroy"
	}
	output.Textf("Stack %s: %s %d resources, preserved %d.\n",
		o.StackName, verb, len(result.Deleted), len(result.Preserved))
	for _, e := range result.Errors {
		output.Textf("  error: %s\n", e)
	}
	if !result.Success() {
		if err := output.Fail("destroy_failed",
			fmt.Sprintf("destruction of %s finished with errors", o.StackName), result.Errors, result); err != nil {
			return err
		}
		return fmt.Errorf("destruction of %s finished with %d errors", o.StackName, len(result.Errors))
	}
	return output.OK(fmt.Sprintf("stack %s %s", o.StackName, verb), result)
}
