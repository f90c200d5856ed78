package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "migrate",
		GroupID: "sync",
		Short:   "Repair owner trees stored under a doubled user_ prefix",
	}

	scan := &cobra.Command{
		Use:   "scan",
		Short: "List owners that still have legacy directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			ids, err := a.MigrationCandidates(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No owners need migration.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	var owner string
	run := &cobra.Command{
		Use:   "run",
		Short: "Copy, verify and delete every legacy object",
		Long: `Move each object under users/user_user_<id>/ to users/user_<id>/. The copy
is read back and compared before the source is deleted, so an interrupted
run can simply be repeated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			rep, err := a.Migrate(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !rep.Success {
				return errors.New("migration finished with errors; rerun to retry the failed objects")
			}
			return nil
		},
	}
	run.Flags().StringVar(&owner, "owner", "", "only this owner id (any prefix form)")

	cmd.AddCommand(scan, run)
	return cmd
}
