// Package validate runs the pre-deploy validation report standalone.
package validate

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/validate"
)

// Options collect the validate flags.
type Options struct {
	Global *util.GlobalOptions
	AWS    util.AWSOptions

	StackName    string
	Tier         string
	InstanceType string
	UseSpot      bool
	VPCID        string
}

// NewCommand builds the validate command.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &Options{
		Global:       global,
		Tier:         string(api.TierDev),
		InstanceType: "t3.medium",
		UseSpot:      true,
	}
	cmd := &cobra.Command{
		Use:          "validate",
		Short:        "Checks credentials, permissions, quotas and naming before a deploy",
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.StackName, "stack-name", "", "Name the deploy would use")
	flags.StringVar(&opts.Tier, "tier", opts.Tier, "Deployment tier: dev, automation or gpu")
	opts.AWS.Bind(flags)
	flags.StringVar(&opts.InstanceType, "instance-type", opts.InstanceType, "Compute instance type to check")
	flags.BoolVar(&opts.UseSpot, "use-spot", opts.UseSpot, "Whether the deploy would use spot capacity")
	flags.StringVar(&opts.VPCID, "vpc-id", "", "Existing VPC the deploy would reuse")
	_ = cmd.MarkFlagRequired("stack-name")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return opts.Run(cmd.Context())
	}
	return cmd
}

// Run builds the report and fails the command when error-severity checks
// failed.
func (o *Options) Run(ctx context.Context) error {
	output, err := o.Global.Printer()
	if err != nil {
		return err
	}
	cfg := api.DefaultConfig()
	cfg.StackName = o.StackName
	cfg.Tier = api.Tier(o.Tier)
	cfg.Region = o.AWS.Region
	cfg.InstanceType = o.InstanceType
	cfg.UseSpot = o.UseSpot
	cfg.VPCID = o.VPCID

	lg := o.Global.Logger()
	store, err := o.Global.Store(lg)
	if err != nil {
		return err
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
	report := validator.PreDeploy(ctx, cfg)

	RenderReport(output, report)
	if !report.Passed() {
		failures := report.Failures(validate.SeverityError)
		msgs := make([]string, 0, len(failures))
		for _, c := range failures {
			msgs = append(msgs, fmt.Sprintf("%s: %s", c.Name, c.Message))
		}
		if err := output.Fail("validation_failed", "validation failed", msgs, report); err != nil {
			return err
		}
		return fmt.Errorf("validation failed with %d errors", len(msgs))
	}
	return output.OK("validation passed", report)
}

// RenderReport prints a report in text mode, one line per check with the
// remediation for failures.
func RenderReport(output *util.Output, report *validate.Report) {
	for _, c := range report.Checks {
		mark := "ok"
		if !c.Passed {
			mark = string(c.Severity)
		}
		output.Textf("[%-7s] %s: %s\n", mark, c.Name, c.Message)
		if !c.Passed && c.Remediation != "" {
			output.Textf("          fix: %s\n", c.Remediation)
		}
	}
}
