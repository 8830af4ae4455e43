// Package update applies in-place changes to a running stack.
package update

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/lifecycle"
)

// Options collect the update flags.
type Options struct {
	Global *util.GlobalOptions
	AWS    util.AWSOptions

	StackName    string
	InstanceType string
	Images       []string
	Force        bool
}

// NewCommand builds the update command.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &Options{Global: global}
	cmd := &cobra.Command{
		Use:          "update STACK",
		Short:        "Updates a stack's instance type or container images in place",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	opts.AWS.Bind(flags)
	flags.StringVar(&opts.InstanceType, "instance-type", "", "New compute instance type; the instance is stopped and restarted")
	flags.StringArrayVar(&opts.Images, "image", nil, "Container image override as name=reference; repeatable")
	flags.BoolVar(&opts.Force, "force", false, "Skip the confirmation prompt")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.StackName = args[0]
		return opts.Run(cmd.Context())
	}
	return cmd
}

// Run executes the update.
func (o *Options) Run(ctx context.Context) error {
	output, err := o.Global.Printer()
	if err != nil {
		return err
	}
	images, err := util.ParseImages(o.Images)
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

	// A type change stops the instance; make the operator own that.
	if o.InstanceType != "" && o.InstanceType != st.Config.InstanceType {
		prompt := fmt.Sprintf("Resize %s from %s to %s? The instance restarts.",
			o.StackName, st.Config.InstanceType, o.InstanceType)
		if err := util.GuardDestructive(output, os.Stdin, os.Stdout, o.Force, prompt); err != nil {
			return err
		}
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

	if err := updater.Update(ctx, st, lifecycle.UpdateOptions{
		InstanceType: o.InstanceType,
		Images:       images,
	}); err != nil {
		if ferr := output.Fail("update_failed", err.Error(), nil, nil); ferr != nil {
			return ferr
		}
		return err
	}

	output.Textf("Stack %s updated.\n", o.StackName)
	output.Textf("  Instance: %s (%s)\n", st.InstanceID, st.Config.InstanceType)
	for _, name := range util.SortedKeys(st.ContainerImages) {
		output.Textf("  %s: %s\n", name, st.ContainerImages[name])
	}
	return output.OK(fmt.Sprintf("stack %s updated", o.StackName), st)
}
