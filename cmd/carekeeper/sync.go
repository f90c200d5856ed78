package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newPullCmd(c *cli) *cobra.Command {
	var (
		owner string
		force bool
	)
	cmd := &cobra.Command{
		Use:     "pull",
		GroupID: "sync",
		Short:   "Apply newer cloud envelopes to the local cache",
		Long: `Download every owner's envelopes from the primary store and apply the ones
that are newer and differ from the local copy. Without --owner the profile
list is pulled first and every known owner is visited.

With --force the owner's local data is discarded and replaced by the cloud
copies regardless of timestamps.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if force && owner == "" {
				return errors.New("--force needs --owner")
			}
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			if force {
				counts, err := a.ForceRefresh(cmd.Context(), owner)
				if perr := printJSON(cmd.OutOrStdout(), counts); perr != nil {
					return perr
				}
				return err
			}
			rep, err := a.Pull(cmd.Context(), owner)
			if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only this owner id (any prefix form)")
	cmd.Flags().BoolVar(&force, "force", false, "replace local data with the cloud copy")
	return cmd
}

func newPushCmd(c *cli) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:     "push",
		GroupID: "sync",
		Short:   "Upload local envelopes to the primary store",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			rep, err := a.Push(cmd.Context(), owner)
			if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only this owner id (any prefix form)")
	return cmd
}
