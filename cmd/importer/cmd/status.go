package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/G-Research/importscheduler/internal/common"
	"github.com/G-Research/importscheduler/internal/importer"
	"github.com/G-Research/importscheduler/internal/importer/configuration"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the progress of the import of one source.",
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			common.ConfigureCommandLineLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := sourceFromFlags(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, _ configuration.ImporterConfig, app *importer.App) error {
				status, err := app.Status(ctx, source)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), source.ID, status)
				return nil
			})
		},
	}
	addSourceFlags(cmd, false)
	return cmd
}

func printStatus(out io.Writer, sourceID string, status *importer.Status) {
	if status.State == nil {
		fmt.Fprintf(out, "Import of %s: never started\n", sourceID)
	} else {
		fmt.Fprintf(out, "Import of %s: %s (updated %s)\n", sourceID, status.State.Status, status.State.UpdatedAt.Format(time.RFC3339))
		if status.State.LastError != "" {
			fmt.Fprintf(out, "Last error: %s\n", status.State.LastError)
		}
	}
	fmt.Fprintf(out, "Jobs ready: %d, scheduled: %d\n\n", status.ReadyJobs, status.ScheduledJobs)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Collection", "Importer", "Page", "Fetched", "Imported", "Stored"})
	for _, c := range status.Collections {
		table.Append([]string{
			c.Name,
			c.Importer,
			strconv.Itoa(c.Page),
			strconv.FormatInt(c.Fetched, 10),
			strconv.FormatInt(c.Imported, 10),
			strconv.FormatInt(c.Stored, 10),
		})
	}
	table.Render()

	if len(status.Failures) == 0 {
		return
	}
	fmt.Fprintln(out)
	failures := tablewriter.NewWriter(out)
	failures.SetHeader([]string{"Time", "Source", "Class", "Message", "Fails import"})
	for _, f := range status.Failures {
		failures.Append([]string{
			f.CreatedAt.Format(time.RFC3339),
			f.ErrorSource,
			f.ExceptionClass,
			f.ExceptionMessage,
			strconv.FormatBool(f.FailImport),
		})
	}
	failures.Render()
}
