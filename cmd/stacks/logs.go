package stacks

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
)

// NewLogsCommand builds the logs command: the tail of a stack's monitor
// output and the shared event log.
func NewLogsCommand(global *util.GlobalOptions) *cobra.Command {
	var (
		stackName string
		tail      int
	)
	cmd := &cobra.Command{
		Use:          "logs",
		Short:        "Shows the tail of a stack's monitoring logs",
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&stackName, "stack-name", "", "Stack whose logs to show")
	cmd.Flags().IntVar(&tail, "tail", 50, "Lines to show from the end of each log")
	_ = cmd.MarkFlagRequired("stack-name")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		output, err := global.Printer()
		if err != nil {
			return err
		}
		layout, err := global.Layout()
		if err != nil {
			return err
		}

		logs := map[string][]string{}
		for name, path := range map[string]string{
			"monitor": layout.MonitorOutLog(stackName),
			"events":  layout.EventLog(),
		} {
			lines, err := tailFile(path, tail)
			if err != nil {
				return err
			}
			logs[name] = lines
			output.Textf("==> %s (%s)\n", path, name)
			for _, line := range lines {
				output.Textf("%s\n", line)
			}
		}
		return output.OK(fmt.Sprintf("logs for %s", stackName), logs)
	}
	return cmd
}

// tailFile returns the last n lines of a file; a missing file is empty, not
// an error.
func tailFile(path string, n int) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read log %s: %w", path, err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
