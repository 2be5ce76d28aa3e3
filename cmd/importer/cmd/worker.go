package cmd

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/importscheduler/internal/common"
	"github.com/G-Research/importscheduler/internal/importer"
	"github.com/G-Research/importscheduler/internal/importer/configuration"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run import jobs until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, config configuration.ImporterConfig, app *importer.App) error {
				shutdownMetrics := common.ServeMetrics(config.MetricsPort)
				defer shutdownMetrics()

				err := app.RunWorkers(ctx)
				log.Info("workers stopped")
				return err
			})
		},
	}
}
