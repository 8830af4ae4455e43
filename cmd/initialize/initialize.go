// Package initialize scaffolds the local state directory tree.
package initialize

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/cmd/util"
	"github.com/geusemaker/geusemaker/support/state"
)

// NewCommand builds the init command.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	var (
		directory string
		force     bool
	)
	cmd := &cobra.Command{
		Use:          "init",
		Short:        "Creates the local state directory tree",
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&directory, "directory", "", "Create the tree here instead of the default location")
	cmd.Flags().BoolVar(&force, "force", false, "Initialize even when deployment records already exist")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		output, err := global.Printer()
		if err != nil {
			return err
		}
		layout, err := layoutFor(global, directory)
		if err != nil {
			return err
		}
		if !force {
			if populated, err := hasRecords(layout); err != nil {
				return err
			} else if populated {
				return util.NewUsageError("%s already holds deployment records; pass --force to initialize anyway", layout.Base)
			}
		}
		if err := layout.Ensure(); err != nil {
			return fmt.Errorf("cannot create state directories: %w", err)
		}
		output.Textf("State directory ready at %s\n", layout.Base)
		return output.OK("state directory initialized", map[string]string{"base": layout.Base})
	}
	return cmd
}

func layoutFor(global *util.GlobalOptions, directory string) (state.Layout, error) {
	if directory != "" {
		return state.Layout{Base: directory}, nil
	}
	return global.Layout()
}

// hasRecords reports whether the deployments directory already holds entries.
func hasRecords(layout state.Layout) (bool, error) {
	entries, err := os.ReadDir(layout.DeploymentsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("cannot inspect %s: %w", layout.DeploymentsDir(), err)
	}
	return len(entries) > 0, nil
}
