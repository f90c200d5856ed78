package main

import (
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/carekeeper/internal/models"
)

func newAttachCmd(c *cli) *cobra.Command {
	var (
		owner      string
		recordType string
	)
	cmd := &cobra.Command{
		Use:     "attach FILE",
		GroupID: "sync",
		Short:   "Upload a file to an owner's attachment folder",
		Long: `Upload FILE to users/user_<id>/<type>_attachments/ and print the attachment
descriptor, including a signed download URL, for use in a record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := models.ParseRecordType(recordType)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := c.ensureApp(cmd)
			if err != nil {
				return err
			}

			name := filepath.Base(args[0])
			att, err := a.Engine(t).UploadAttachment(cmd.Context(), owner, name, mime.TypeByExtension(filepath.Ext(name)), data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), att)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (any prefix form)")
	cmd.Flags().StringVar(&recordType, "type", string(models.RecordTypeMeal), "record type the file belongs to")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
