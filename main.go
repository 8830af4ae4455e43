package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/backup"
	"github.com/geusemaker/geusemaker/cmd/cleanup"
	"github.com/geusemaker/geusemaker/cmd/deploy"
	"github.com/geusemaker/geusemaker/cmd/destroy"
	"github.com/geusemaker/geusemaker/cmd/health"
	"github.com/geusemaker/geusemaker/cmd/initialize"
	"github.com/geusemaker/geusemaker/cmd/monitor"
	"github.com/geusemaker/geusemaker/cmd/report"
	"github.com/geusemaker/geusemaker/cmd/rollback"
	"github.com/geusemaker/geusemaker/cmd/stacks"
	"github.com/geusemaker/geusemaker/cmd/update"
	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/cmd/validate"
	"github.com/geusemaker/geusemaker/support/version"
)

func main() {
	global := &util.GlobalOptions{}

	cmd := &cobra.Command{
		Use:          "geusemaker",
		Short:        "Provisions and operates reproducible AI workflow stacks on AWS",
		Version:      version.Version,
		SilenceUsage: true,

		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	global.Bind(cmd.PersistentFlags())
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return util.NewUsageError("%v", err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd.AddCommand(initialize.NewCommand(global))
	cmd.AddCommand(deploy.NewCommand(global))
	cmd.AddCommand(destroy.NewCommand(global))
	cmd.AddCommand(update.NewCommand(global))
	cmd.AddCommand(rollback.NewCommand(global))
	cmd.AddCommand(validate.NewCommand(global))
	cmd.AddCommand(report.NewCommand(global))
	cmd.AddCommand(health.NewCommand(global))
	cmd.AddCommand(monitor.NewCommand(global))
	cmd.AddCommand(stacks.NewListCommand(global))
	cmd.AddCommand(stacks.NewInspectCommand(global))
	cmd.AddCommand(stacks.NewStatusCommand(global))
	cmd.AddCommand(stacks.NewInfoCommand(global))
	cmd.AddCommand(stacks.NewLogsCommand(global))
	cmd.AddCommand(stacks.NewCostCommand(global))
	cmd.AddCommand(backup.NewCommand(global))
	cmd.AddCommand(backup.NewRestoreCommand(global))
	cmd.AddCommand(cleanup.NewCommand(global))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT)
	go func() {
		<-sigs
		_, _ = fmt.Fprintln(os.Stderr, "\nAborted...")
		cancel()
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes operator mistakes from operational failures.
func exitCode(err error) int {
	var usage *util.UsageError
	if errors.As(err, &usage) {
		return 2
	}
	return 1
}
