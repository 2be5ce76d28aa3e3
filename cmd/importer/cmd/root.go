package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/G-Research/importscheduler/internal/common"
	"github.com/G-Research/importscheduler/internal/importer"
	"github.com/G-Research/importscheduler/internal/importer/configuration"
	"github.com/G-Research/importscheduler/internal/scheduler"
)

const (
	defaultConfigPath = "./config/importer"
	configFlag        = "config"
	sourceIDFlag      = "source-id"
	sourceRefFlag     = "source-ref"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "importer",
		Short:         "importer schedules resumable imports of remote repositories.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringSlice(configFlag, []string{}, "Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")

	cmd.AddCommand(
		scheduleCmd(),
		workerCmd(),
		statusCmd(),
		notifyCmd(),
	)
	return cmd
}

func loadConfig(cmd *cobra.Command) (configuration.ImporterConfig, error) {
	var config configuration.ImporterConfig
	overrides, err := cmd.Flags().GetStringSlice(configFlag)
	if err != nil {
		return config, err
	}
	common.LoadConfig(&config, defaultConfigPath, overrides)
	return config, nil
}

// withApp loads the configuration and runs action against a connected App, cancelling its context on
// SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, action func(ctx context.Context, config configuration.ImporterConfig, app *importer.App) error) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := importer.New(ctx, config, prometheusRegisterer())
	if err != nil {
		return err
	}
	defer app.Close()
	return action(ctx, config, app)
}

func addSourceFlags(cmd *cobra.Command, withRef bool) {
	cmd.Flags().String(sourceIDFlag, "", "Local id of the import target")
	_ = cmd.MarkFlagRequired(sourceIDFlag)
	if withRef {
		cmd.Flags().String(sourceRefFlag, "", "Remote repository, e.g. octocat/hello-world")
		_ = cmd.MarkFlagRequired(sourceRefFlag)
	}
}

func sourceFromFlags(cmd *cobra.Command) (scheduler.Source, error) {
	id, err := cmd.Flags().GetString(sourceIDFlag)
	if err != nil {
		return scheduler.Source{}, err
	}
	source := scheduler.Source{ID: id}
	if cmd.Flags().Lookup(sourceRefFlag) != nil {
		if source.Ref, err = cmd.Flags().GetString(sourceRefFlag); err != nil {
			return scheduler.Source{}, err
		}
	}
	return source, nil
}
