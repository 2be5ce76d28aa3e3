package cmd

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/importscheduler/internal/common"
	"github.com/G-Research/importscheduler/internal/importer"
	"github.com/G-Research/importscheduler/internal/importer/configuration"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Import the collections of one source.",
		Long: `Pages through each configured collection of the source and imports every object not yet imported,
inline or by dispatching jobs to workers. Interrupted imports resume where they stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := sourceFromFlags(cmd)
			if err != nil {
				return err
			}
			collections, err := cmd.Flags().GetStringSlice("collection")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, config configuration.ImporterConfig, app *importer.App) error {
				shutdownMetrics := common.ServeMetrics(config.MetricsPort)
				defer shutdownMetrics()

				results, err := app.Schedule(ctx, source, collections)
				names := maps.Keys(results)
				slices.Sort(names)
				for _, name := range names {
					result := results[name]
					if result == nil {
						continue
					}
					entry := log.WithFields(log.Fields{
						"collection":      name,
						"imported":        result.Imported,
						"scheduled":       result.Scheduled,
						"skipped_pages":   result.SkippedPages,
						"skipped_objects": result.SkippedObjects,
					})
					if result.Waiter != nil {
						entry = entry.WithFields(log.Fields{"waiter_key": result.Waiter.Key, "jobs_remaining": result.Waiter.JobsRemaining})
					}
					entry.Info("collection scheduled")
				}
				return err
			})
		},
	}
	addSourceFlags(cmd, true)
	cmd.Flags().StringSlice("collection", []string{}, "Collections to import, all configured collections if not given")
	return cmd
}
