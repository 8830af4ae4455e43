package stacks

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
)

// costOptions collect the cost flags.
type costOptions struct {
	Global *util.GlobalOptions
	AWS    util.AWSOptions

	StackName string
	Refresh   bool
}

// NewCostCommand builds the cost command: the recorded estimate, optionally
// refreshed against the live price catalogue.
func NewCostCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &costOptions{Global: global}
	cmd := &cobra.Command{
		Use:          "cost STACK",
		Short:        "Shows a stack's cost estimate",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	opts.AWS.Bind(flags)
	flags.BoolVar(&opts.Refresh, "refresh", false, "Re-query current prices instead of showing the recorded figures")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.StackName = args[0]
		return opts.Run(cmd.Context())
	}
	return cmd
}

func (o *costOptions) Run(ctx context.Context) error {
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

	cost := st.CostTracking
	if o.Refresh {
		if st.Config.Region != "" {
			o.AWS.Region = st.Config.Region
		}
		clients, err := o.AWS.Clients(ctx)
		if err != nil {
			return err
		}
		svc := util.NewServices(clients, o.AWS.Region, lg)
		res := svc.Prices.OnDemandHourly(ctx, st.Config.InstanceType)
		// Spot keeps the price it launched at; only the on-demand figure is
		// re-queried.
		hourly := cost.HourlyCompute
		if !cost.IsSpot {
			hourly = res.Price
		}
		cost = svc.Prices.EstimateMonthly(ctx, st.Config,
			hourly, cost.IsSpot, cost.SpotPricePerHour, res.Price, res.Source)
		st.CostTracking = cost
		if err := store.Save(ctx, st); err != nil {
			return fmt.Errorf("cannot persist refreshed estimate: %w", err)
		}
	}

	output.Textf("Stack %s (%s, spot=%t)\n", st.StackName, cost.InstanceType, cost.IsSpot)
	output.Textf("  Compute:   $%.4f/hour (on-demand $%.4f/hour)\n", cost.HourlyCompute, cost.OnDemandPricePerHour)
	if cost.StorageMonthly > 0 {
		output.Textf("  Storage:   $%.2f/month\n", cost.StorageMonthly)
	}
	if cost.LBMonthly > 0 {
		output.Textf("  ALB:       $%.2f/month\n", cost.LBMonthly)
	}
	if cost.CDNMonthly > 0 {
		output.Textf("  CDN:       $%.2f/month\n", cost.CDNMonthly)
	}
	output.Textf("  Estimated: $%.2f/month (%s)\n", cost.EstimatedMonthly, cost.Source)
	return output.OK(fmt.Sprintf("estimated $%.2f/month", cost.EstimatedMonthly), cost)
}
