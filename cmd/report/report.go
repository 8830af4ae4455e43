// Package report assembles a full deployment report: the record, an optional
// fresh health probe, and an optional post-deploy validation pass.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/healthcheck"
	"github.com/geusemaker/geusemaker/support/validate"
)

// Options collect the report flags.
type Options struct {
	Global *util.GlobalOptions
	AWS    util.AWSOptions

	StackName  string
	Refresh    bool
	Post       bool
	OutputFile string
}

// Report is the assembled document.
type Report struct {
	Stack       string               `json:"stack"`
	GeneratedAt time.Time            `json:"generated_at"`
	State       *api.DeploymentState `json:"state"`
	Health      *healthcheck.Summary `json:"health,omitempty"`
	Validation  *validate.Report     `json:"validation,omitempty"`
}

// NewCommand builds the report command.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &Options{Global: global}
	cmd := &cobra.Command{
		Use:          "report",
		Short:        "Builds a deployment report with optional live health and validation",
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.StackName, "stack-name", "", "Stack to report on")
	opts.AWS.Bind(flags)
	flags.BoolVar(&opts.Refresh, "refresh", false, "Probe service health live instead of reporting the record alone")
	flags.BoolVar(&opts.Post, "post", false, "Run the post-deploy validation checks")
	flags.StringVar(&opts.OutputFile, "output-file", "", "Write the report to this file instead of stdout")
	_ = cmd.MarkFlagRequired("stack-name")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return opts.Run(cmd.Context())
	}
	return cmd
}

// Run assembles and emits the report.
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
	report := &Report{Stack: st.StackName, GeneratedAt: time.Now().UTC(), State: st}

	if o.Refresh {
		host := st.EffectiveHost()
		if host != "" {
			summary := healthcheck.CheckAll(ctx, healthcheck.Services(host, healthcheck.SetOptions{}))
			report.Health = summary
		}
	}
	if o.Post {
		if st.Config.Region != "" {
			o.AWS.Region = st.Config.Region
		}
		clients, err := o.AWS.Clients(ctx)
		if err != nil {
			return err
		}
		svc := util.NewServices(clients, o.AWS.Region, lg)
		validator := validate.New(validate.Deps{
			Region:      o.AWS.Region,
			STS:         clients.STS(),
			IAM:         clients.IAM(),
			Quotas:      clients.ServiceQuotas(o.AWS.Region),
			EC2:         clients.EC2(o.AWS.Region),
			EFS:         clients.EFS(o.AWS.Region),
			ELB:         clients.ELBV2(o.AWS.Region),
			Networks:    svc.Networks,
			Groups:      svc.Groups,
			Instances:   svc.Instances,
			Filesystems: svc.Filesystems,
			Index:       store,
			Log:         lg,
		})
		report.Validation = validator.PostDeploy(ctx, st)
	}

	if o.OutputFile != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("cannot encode report: %w", err)
		}
		if err := os.WriteFile(o.OutputFile, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("cannot write report: %w", err)
		}
		return output.OK(fmt.Sprintf("report written to %s", o.OutputFile),
			map[string]string{"path": o.OutputFile})
	}

	o.render(output, report)
	if report.Validation != nil && !report.Validation.Passed() {
		if err := output.Fail("validation_failed",
			fmt.Sprintf("post-deploy validation of %s failed", o.StackName), nil, report); err != nil {
			return err
		}
		return fmt.Errorf("post-deploy validation of %s failed", o.StackName)
	}
	return output.OK(fmt.Sprintf("report for %s", o.StackName), report)
}

func (o *Options) render(output *util.Output, report *Report) {
	st := report.State
	output.Textf("Report for %s (generated %s)\n", report.Stack, report.GeneratedAt.Format(time.RFC3339))
	output.Textf("  Status:   %s\n", st.Status)
	output.Textf("  Instance: %s (%s)\n", st.InstanceID, st.Config.InstanceType)
	output.Textf("  Address:  %s\n", st.N8NURL)
	output.Textf("  Estimate: $%.2f/month\n", st.CostTracking.EstimatedMonthly)
	if report.Health != nil {
		output.Textf("  Health:   %d/%d services healthy\n",
			report.Health.HealthyCount(), len(report.Health.Results))
	}
	if report.Validation != nil {
		output.Textf("  Validation: passed=%t, %d checks\n",
			report.Validation.Passed(), len(report.Validation.Checks))
	}
}
