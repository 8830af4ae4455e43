// Package cleanup removes orphaned provider resources left behind by dead
// stacks.
package cleanup

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/cleanup"
)

// Options collect the cleanup flags.
type Options struct {
	Global *util.GlobalOptions
	AWS    util.AWSOptions

	DryRun bool
	All    bool
	Stacks []string
	Force  bool
}

// NewCommand builds the cleanup command.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &Options{Global: global}
	cmd := &cobra.Command{
		Use:          "cleanup",
		Short:        "Finds and removes orphaned provider resources",
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	opts.AWS.Bind(flags)
	flags.BoolVar(&opts.DryRun, "dry-run", false, "Report orphans without deleting anything")
	flags.BoolVar(&opts.All, "all", false, "Consider every orphan, not just named stacks")
	flags.StringSliceVar(&opts.Stacks, "stack", nil, "Restrict cleanup to this stack's orphans; repeatable")
	flags.BoolVar(&opts.Force, "force", false, "Skip the confirmation prompt")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return opts.Run(cmd.Context())
	}
	return cmd
}

// Run discovers orphans and removes them unless dry-run.
func (o *Options) Run(ctx context.Context) error {
	output, err := o.Global.Printer()
	if err != nil {
		return err
	}
	if !o.All && len(o.Stacks) == 0 {
		return util.NewUsageError("pass --all or at least one --stack")
	}
	lg := o.Global.Logger()
	store, err := o.Global.Store(lg)
	if err != nil {
		return err
	}
	if !o.DryRun {
		if err := util.GuardDestructive(output, os.Stdin, os.Stdout, o.Force,
			"Delete every orphaned resource found?"); err != nil {
			return err
		}
	}
	clients, err := o.AWS.Clients(ctx)
	if err != nil {
		return err
	}
	svc := util.NewServices(clients, o.AWS.Region, lg)
	cleaner := cleanup.New(o.AWS.Region, clients.Tagging(o.AWS.Region),
		svc.Instances, svc.Filesystems, svc.Groups, svc.Networks, store, lg)

	report, err := cleaner.Run(ctx, cleanup.Options{DryRun: o.DryRun, Stacks: o.Stacks})
	if err != nil {
		return err
	}

	for _, orphan := range report.Orphans {
		output.Textf("orphan %-16s %s (stack %s, $%.0f/month)\n",
			orphan.Kind, orphan.ID, orphan.Stack, orphan.MonthlyCost)
	}
	output.Textf("Found %d orphans, deleted %d, preserved %d. Estimated savings: $%.0f/month.\n",
		report.OrphansFound, report.OrphansDeleted, report.OrphansPreserved,
		report.EstimatedMonthlySavings)
	if !report.Success() {
		if err := output.Fail("cleanup_failed", "cleanup finished with errors", report.Errors, report); err != nil {
			return err
		}
		return fmt.Errorf("cleanup finished with %d errors", len(report.Errors))
	}
	return output.OK(fmt.Sprintf("%d orphans deleted", report.OrphansDeleted), report)
}
