// Package backup manages state-record backups: create, list and restore.
package backup

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/geusemaker/geusemaker/api"
	"github.com/geusemaker/geusemaker/cmd/util"
)

// NewCommand builds the backup command group.
func NewCommand(global *util.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "backup",
		Short:        "Manages state-record backups",
		SilenceUsage: true,
	}
	cmd.AddCommand(newCreateCommand(global))
	cmd.AddCommand(newListCommand(global))
	return cmd
}

func newCreateCommand(global *util.GlobalOptions) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:          "create STACK",
		Short:        "Snapshots a stack's record into a backup",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&label, "label", "", "Tag the backup with a label")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		output, err := global.Printer()
		if err != nil {
			return err
		}
		store, err := global.Store(global.Logger())
		if err != nil {
			return err
		}
		path, err := store.Backup(cmd.Context(), args[0], label)
		if err != nil {
			return err
		}
		output.Textf("Backup written to %s\n", path)
		return output.OK(fmt.Sprintf("backup of %s created", args[0]),
			map[string]string{"path": path})
	}
	return cmd
}

func newListCommand(global *util.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "list [STACK]",
		Short:        "Lists backups, for one stack or all",
		Args:         cobra.MaximumNArgs(1),
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
		stack := ""
		if len(args) == 1 {
			stack = args[0]
		}
		backups, err := store.ListBackups(cmd.Context(), stack)
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			output.Textf("No backups found.\n")
		}
		for _, b := range backups {
			output.Textf("%-24s %-40s %8d bytes  %s\n",
				b.Stack, b.Name, b.Size, b.ModTime.Format("2006-01-02 15:04:05"))
		}
		return output.OK(fmt.Sprintf("%d backups", len(backups)), backups)
	}
	return cmd
}

// RestoreOptions collect the restore flags.
type RestoreOptions struct {
	Global *util.GlobalOptions

	StackName  string
	Latest     bool
	BackupPath string
	Force      bool
}

// NewRestoreCommand builds the top-level restore command.
func NewRestoreCommand(global *util.GlobalOptions) *cobra.Command {
	opts := &RestoreOptions{Global: global}
	cmd := &cobra.Command{
		Use:          "restore STACK",
		Short:        "Replaces a stack's live record with a backup",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.Latest, "latest", false, "Restore the most recent backup")
	flags.StringVar(&opts.BackupPath, "backup", "", "Restore this backup file")
	flags.BoolVar(&opts.Force, "force", false, "Skip the confirmation prompt")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.StackName = args[0]
		output, err := global.Printer()
		if err != nil {
			return err
		}
		if opts.Latest == (opts.BackupPath != "") {
			return util.NewUsageError("pass exactly one of --latest or --backup PATH")
		}
		// Restoring overwrites the live record.
		prompt := fmt.Sprintf("Replace the live record of %s with the backup?", opts.StackName)
		if err := util.GuardDestructive(output, os.Stdin, os.Stdout, opts.Force, prompt); err != nil {
			return err
		}

		store, err := global.Store(global.Logger())
		if err != nil {
			return err
		}
		st, err := func() (*api.DeploymentState, error) {
			if opts.Latest {
				return store.RestoreLatest(cmd.Context(), opts.StackName)
			}
			return store.Restore(cmd.Context(), opts.StackName, opts.BackupPath)
		}()
		if err != nil {
			return err
		}
		output.Textf("Stack %s restored (status %s, updated %s)\n",
			st.StackName, st.Status, st.UpdatedAt.Format("2006-01-02 15:04:05"))
		return output.OK(fmt.Sprintf("stack %s restored", opts.StackName), st)
	}
	return cmd
}
