// Package health probes a host's service endpoints once and reports.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/healthcheck"
)

// Options collect the health flags.
type Options struct {
	Global *util.GlobalOptions

	Host            string
	IncludePostgres bool
	TimeoutSeconds  int
}

// NewCommand builds the health command.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &Options{Global: global, TimeoutSeconds: 10}
	cmd := &cobra.Command{
		Use:          "health",
		Short:        "Probes every service endpoint on a host once",
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", "", "Host or address to probe")
	flags.BoolVar(&opts.IncludePostgres, "include-postgres", false, "Also probe the postgres port")
	flags.IntVar(&opts.TimeoutSeconds, "timeout", opts.TimeoutSeconds, "Per-probe timeout in seconds")
	_ = cmd.MarkFlagRequired("host")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return opts.Run(cmd.Context())
	}
	return cmd
}

// Run probes and fails the command when any service is unhealthy.
func (o *Options) Run(ctx context.Context) error {
	output, err := o.Global.Printer()
	if err != nil {
		return err
	}
	probes := healthcheck.Services(o.Host, healthcheck.SetOptions{
		IncludePostgres: o.IncludePostgres,
		Timeout:         time.Duration(o.TimeoutSeconds) * time.Second,
	})
	summary := healthcheck.CheckAll(ctx, probes)

	for _, res := range summary.Results {
		if res.Healthy {
			output.Textf("[ok]   %-18s %s (%.0f ms)\n", res.Service, res.Endpoint, res.ResponseTimeMS)
		} else {
			output.Textf("[down] %-18s %s: %s\n", res.Service, res.Endpoint, res.ErrorMessage)
		}
	}
	output.Textf("%d/%d services healthy.\n", summary.HealthyCount(), len(summary.Results))

	if !summary.AllHealthy() {
		var unhealthy []string
		for _, res := range summary.Results {
			if !res.Healthy {
				unhealthy = append(unhealthy, fmt.Sprintf("%s: %s", res.Service, res.ErrorMessage))
			}
		}
		if err := output.Fail("unhealthy",
			fmt.Sprintf("%d of %d services unhealthy", len(unhealthy), len(summary.Results)),
			unhealthy, summary); err != nil {
			return err
		}
		return fmt.Errorf("%d of %d services unhealthy", len(unhealthy), len(summary.Results))
	}
	return output.OK("all services healthy", summary)
}
