package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		GroupID: "daemon",
		Short:   "Run the daemon: OAuth callback, status, metrics, health and periodic backup",
		Long: `Run until interrupted. The HTTP surface (-a) serves:
  GET  /oauth/start     begin the backup provider authorization
  GET  /oauth/callback  finish it
  GET  /status          current backup status
  POST /backup          run a backup now
  GET  /metrics         Prometheus metrics

gRPC health (-q) reports the backup service NOT_SERVING after a run fails
for lack of authorization. A full backup runs every -t minutes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context())
		},
	}
}
