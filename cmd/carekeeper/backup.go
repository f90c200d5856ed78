package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/carekeeper/internal/filex"
)

func newBackupCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backup",
		GroupID: "backup",
		Short:   "Export to and restore from the backup provider",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Find or create the backup root and users folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			folders, err := a.InitBackup(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), folders)
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Write every owner's profile, records and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			res, err := a.Backup(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	var (
		apply bool
		out   string
	)
	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Read the backup hierarchy back",
		Long: `Read every owner folder of the backup hierarchy. The snapshot is printed,
or written to --out; with --apply it also replaces the local data of every
owner it contains.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			snap, err := a.Restore(cmd.Context(), apply)
			if err != nil {
				return err
			}
			if out == "" {
				return printJSON(cmd.OutOrStdout(), snap)
			}

			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			if err := filex.WriteFileAtomic(out, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d owners and %d records to %s\n", len(snap.Users), len(snap.Records), out)
			return nil
		},
	}
	restoreCmd.Flags().BoolVar(&apply, "apply", false, "import the snapshot into the local cache")
	restoreCmd.Flags().StringVar(&out, "out", "", "write the snapshot to this file instead of stdout")

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete duplicate folders and status files, keeping the oldest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			entries, err := a.CleanupBackup(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), entries); perr != nil {
				return perr
			}
			return err
		},
	}

	cmd.AddCommand(initCmd, syncCmd, restoreCmd, cleanupCmd)
	return cmd
}
