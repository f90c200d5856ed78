package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/carekeeper/internal/app"
	"github.com/dmitrijs2005/carekeeper/internal/config"
)

// cli carries the configuration and the lazily opened orchestrator shared
// by every command.
type cli struct {
	cfg  *config.Config
	open func(ctx context.Context, cfg *config.Config) (*app.App, error)
	app  *app.App
}

func openApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

func (c *cli) ensureApp(cmd *cobra.Command) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := c.open(cmd.Context(), c.cfg)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "carekeeper",
		Short: "Local-first sync of family health records",
		Long: `carekeeper keeps family health records in a local cache and mirrors them
to an S3-compatible primary store and a folder-based backup provider.

Configuration comes from defaults, a JSON file (-c/-config) and short flags
such as -d <dsn> or -b <bucket>; run with -h on any command for its options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddGroup(
		&cobra.Group{ID: "sync", Title: "Primary store:"},
		&cobra.Group{ID: "backup", Title: "Backup provider:"},
		&cobra.Group{ID: "daemon", Title: "Daemon:"},
	)

	root.AddCommand(
		newPullCmd(c),
		newPushCmd(c),
		newAttachCmd(c),
		newMigrateCmd(c),
		newBackupCmd(c),
		newAuthCmd(c),
		newServeCmd(c),
	)
	return root
}
