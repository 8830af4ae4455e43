package stacks

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/healthcheck"
	"github.com/geusemaker/geusemaker/support/state"
)

// NewInspectCommand builds the inspect command: the full record, verbatim.
func NewInspectCommand(global *util.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "inspect STACK",
		Short:        "Dumps a stack's full deployment record",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		output, err := global.Printer()
		if err != nil {
			return err
		}
		store, err := global.Store(global.Logger())
		if err != nil {
			return err
		}
		st, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("cannot load stack %s: %w", args[0], err)
		}
		if !output.Structured() {
			data, err := state.Export(st, state.FormatJSON)
			if err != nil {
				return err
			}
			output.Textf("%s\n", data)
			return nil
		}
		return output.OK("", st)
	}
	return cmd
}

// NewStatusCommand builds the status command: one line per stack.
func NewStatusCommand(global *util.GlobalOptions) *cobra.Command {
	var stackName string
	cmd := &cobra.Command{
		Use:          "status",
		Short:        "Shows a stack's lifecycle status",
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&stackName, "stack-name", "", "Stack to report on")
	_ = cmd.MarkFlagRequired("stack-name")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		output, err := global.Printer()
		if err != nil {
			return err
		}
		store, err := global.Store(global.Logger())
		if err != nil {
			return err
		}
		st, err := store.Load(cmd.Context(), stackName)
		if err != nil {
			return fmt.Errorf("cannot load stack %s: %w", stackName, err)
		}
		output.Textf("%s: %s (updated %s)\n", st.StackName, st.Status,
			st.UpdatedAt.Format(time.RFC3339))
		return output.OK(string(st.Status), map[string]any{
			"stack":      st.StackName,
			"status":     st.Status,
			"updated_at": st.UpdatedAt,
		})
	}
	return cmd
}

// infoOptions collect the info flags.
type infoOptions struct {
	Global *util.GlobalOptions

	StackName  string
	Host       string
	SkipHealth bool
}

// NewInfoCommand builds the info command: a summary plus a live health probe.
func NewInfoCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &infoOptions{Global: global}
	cmd := &cobra.Command{
		Use:          "info STACK",
		Short:        "Summarises a stack and probes its services",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", "", "Probe this host instead of the recorded address")
	flags.BoolVar(&opts.SkipHealth, "skip-health", false, "Skip the live health probe")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.StackName = args[0]
		return opts.Run(cmd.Context())
	}
	return cmd
}

func (o *infoOptions) Run(ctx context.Context) error {
	output, err := o.Global.Printer()
	if err != nil {
		return err
	}
	store, err := o.Global.Store(o.Global.Logger())
	if err != nil {
		return err
	}
	st, err := store.Load(ctx, o.StackName)
	if err != nil {
		return fmt.Errorf("cannot load stack %s: %w", o.StackName, err)
	}

	output.Textf("Stack:    %s (%s, %s)\n", st.StackName, st.Config.Tier, st.Config.Region)
	output.Textf("Status:   %s\n", st.Status)
	output.Textf("Instance: %s (%s) in %s\n", st.InstanceID, st.Config.InstanceType, st.AvailabilityZone)
	output.Textf("Address:  %s\n", st.N8NURL)
	output.Textf("Estimate: $%.2f/month\n", st.CostTracking.EstimatedMonthly)

	data := map[string]any{"state": st}
	if !o.SkipHealth {
		host := o.Host
		if host == "" {
			host = st.EffectiveHost()
		}
		if host == "" {
			output.Textf("Health:   no address to probe\n")
		} else {
			summary := healthcheck.CheckAll(ctx, healthcheck.Services(host, healthcheck.SetOptions{}))
			data["health"] = summary
			output.Textf("Health:   %d/%d services healthy\n",
				summary.HealthyCount(), len(summary.Results))
			for _, res := range summary.Results {
				if !res.Healthy {
					output.Textf("  down: %s (%s)\n", res.Service, res.ErrorMessage)
				}
			}
		}
	}
	return output.OK(fmt.Sprintf("stack %s is %s", st.StackName, st.Status), data)
}
