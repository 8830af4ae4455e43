// Package monitor starts and stops the health monitoring loop for a stack,
// in the foreground or as a detached background process.
package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/monitor"
)

// NewCommand builds the monitor command group.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "monitor",
		Short:        "Runs the health monitoring loop for a stack",
		SilenceUsage: true,
	}
	cmd.AddCommand(newStartCommand(global))
	cmd.AddCommand(newStopCommand(global))
	return cmd
}

// StartOptions collect the monitor start flags.
type StartOptions struct {
	Global *util.GlobalOptions

	StackName       string
	Host            string
	IntervalSeconds int
	Checks          int
	Background      bool
	LogDir          string
	IncludePostgres bool
}

func newStartCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &StartOptions{Global: global, IntervalSeconds: 30}
	cmd := &cobra.Command{
		Use:          "start STACK",
		Short:        "Starts the monitoring loop",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.Host, "host", "", "Host to probe (default: the stack's recorded address)")
	flags.IntVar(&opts.IntervalSeconds, "interval", opts.IntervalSeconds, "Seconds between iterations")
	flags.IntVar(&opts.Checks, "checks", 0, "Stop after N iterations; 0 runs until stopped")
	flags.BoolVar(&opts.Background, "background", false, "Detach and run in the background")
	flags.StringVar(&opts.LogDir, "log-dir", "", "Directory for the event log (default: state dir logs/)")
	flags.BoolVar(&opts.IncludePostgres, "include-postgres", false, "Also probe the postgres port")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.StackName = args[0]
		return opts.Run(cmd.Context())
	}
	return cmd
}

// Run starts the loop, re-execing first when --background was asked for.
func (o *StartOptions) Run(ctx context.Context) error {
	output, err := o.Global.Printer()
	if err != nil {
		return err
	}
	lg := o.Global.Logger()
	layout, err := o.Global.Layout()
	if err != nil {
		return err
	}
	if o.Host == "" {
		store, err := o.Global.Store(lg)
		if err != nil {
			return err
		}
		st, err := store.Load(ctx, o.StackName)
		if err != nil {
			return fmt.Errorf("no --host given and stack %s cannot be loaded: %w", o.StackName, err)
		}
		o.Host = st.EffectiveHost()
	}
	if o.Host == "" {
		return util.NewUsageError("stack %s has no recorded address; pass --host", o.StackName)
	}

	if o.Background {
		pid, err := monitor.NewBackground(layout).Start(o.StackName, o.foregroundArgs())
		if err != nil {
			return err
		}
		output.Textf("Monitoring %s in the background (pid %d).\n", o.StackName, pid)
		return output.OK(fmt.Sprintf("monitor for %s started", o.StackName),
			map[string]any{"pid": pid, "stack": o.StackName})
	}

	if err := layout.Ensure(); err != nil {
		return err
	}
	eventLog := layout.EventLog()
	if o.LogDir != "" {
		eventLog = filepath.Join(o.LogDir, "health_events.log")
	}
	notifiers := []monitor.Notifier{
		&monitor.LogNotifier{Log: lg},
		monitor.NewFileNotifier(eventLog),
	}
	var sampler monitor.Sampler
	if sys, err := monitor.NewSystemSampler(""); err != nil {
		lg.Info("Resource sampling unavailable", "reason", err.Error())
	} else {
		sampler = sys
	}

	m := monitor.New(monitor.Config{
		Stack:           o.StackName,
		Host:            o.Host,
		Interval:        time.Duration(o.IntervalSeconds) * time.Second,
		Iterations:      o.Checks,
		IncludePostgres: o.IncludePostgres,
	}, notifiers, sampler, lg)

	if err := m.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	st := m.State()
	output.Textf("Monitored %s for %d iterations.\n", o.StackName, st.Iterations)
	return output.OK(fmt.Sprintf("monitoring of %s finished", o.StackName), st)
}

// foregroundArgs rebuilds the command line for the detached child, minus
// --background.
func (o *StartOptions) foregroundArgs() []string {
	args := []string{"monitor", "start", o.StackName,
		"--host", o.Host,
		"--interval", strconv.Itoa(o.IntervalSeconds),
	}
	if o.Checks > 0 {
		args = append(args, "--checks", strconv.Itoa(o.Checks))
	}
	if o.IncludePostgres {
		args = append(args, "--include-postgres")
	}
	if o.LogDir != "" {
		args = append(args, "--log-dir", o.LogDir)
	}
	if o.Global.StateDir != "" {
		args = append(args, "--state-dir", o.Global.StateDir)
	}
	return args
}

func newStopCommand(global *util.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "stop STACK",
		Short:        "Stops a background monitor",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		output, err := global.Printer()
		if err != nil {
			return err
		}
		layout, err := global.Layout()
		if err != nil {
			return err
		}
		if err := monitor.NewBackground(layout).Stop(args[0]); err != nil {
			return err
		}
		output.Textf("Monitor for %s stopped.\n", args[0])
		return output.OK(fmt.Sprintf("monitor for %s stopped", args[0]), nil)
	}
	return cmd
}
