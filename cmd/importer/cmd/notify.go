package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/G-Research/importscheduler/internal/common"
	"github.com/G-Research/importscheduler/internal/importer"
	"github.com/G-Research/importscheduler/internal/importer/configuration"
)

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify <waiterKey> <jobId>",
		Short: "Report a job as finished to the waiter at waiterKey.",
		Long:  `Releases a waiter by hand, e.g. for a job that was lost and will never report back.`,
		Args:  cobra.ExactArgs(2),
		PreRun: func(cmd *cobra.Command, args []string) {
			common.ConfigureCommandLineLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, _ configuration.ImporterConfig, app *importer.App) error {
				if err := app.Notify(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Notified %s of job %s\n", args[0], args[1])
				return nil
			})
		},
	}
}
