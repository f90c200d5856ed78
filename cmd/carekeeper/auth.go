package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auth",
		GroupID: "backup",
		Short:   "Manage the backup provider session",
	}

	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Print the consent URL; finish the flow through the daemon callback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			u, err := a.AuthCodeURL()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			if err := a.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a session is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			ok, err := a.Authenticated(cmd.Context())
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Authenticated.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Not authenticated. Run `carekeeper auth url` to sign in.")
			}
			return nil
		},
	}

	cmd.AddCommand(urlCmd, statusCmd, logoutCmd)
	return cmd
}
