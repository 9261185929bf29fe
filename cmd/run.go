package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/dispatcher"
	"github.com/JakeFAU/contact-harvester/internal/export"
)

// newRunCmd creates the 'run' subcommand, which harvests every pending record.
func newRunCmd(c *cli) *cobra.Command {
	var exportAfter bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvests all pending records",
		Long: `Fetches pending records with a usable website and harvests them with a
bounded pool of workers. Each result is written back to the store as soon
as it completes, so an interrupted run picks up where it stopped. The
command exits 1 when any record failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd, c.app, exportAfter)
		},
	}
	flags := cmd.Flags()
	flags.Int("concurrency", 0, "number of concurrent workers (default from config)")
	flags.Int("max-records", 0, "harvest at most this many records, 0 for all")
	flags.Bool("headless", true, "run Chrome without a window")
	flags.Bool("render", true, "render pages with Chrome; false uses plain HTTP sessions")
	flags.BoolVar(&exportAfter, "export", false, "export harvested records when the run finishes")
	return cmd
}

func runHarvest(cmd *cobra.Command, services Services, exportAfter bool) error {
	ctx := cmd.Context()
	logger := services.Logger()
	summary, err := services.Run(ctx, services.Config().Harvest.MaxRecords)
	if err != nil {
		return fmt.Errorf("run harvest: %w", err)
	}
	if summary.Total > 0 {
		printSummary(cmd.OutOrStdout(), summary)
	}
	if exportAfter {
		// An interrupted run still exports what it persisted.
		if err := runExport(context.WithoutCancel(ctx), cmd.OutOrStdout(), services, "", ""); err != nil {
			return err
		}
	}
	if summary.HasFailures() {
		logger.Warn("run finished with failures", zap.Int("failed", summary.Failed))
		return fmt.Errorf("%d of %d records: %w", summary.Failed, summary.Processed, errRecordsFailed)
	}
	return nil
}

func printSummary(w io.Writer, s dispatcher.Summary) {
	_, _ = fmt.Fprintf(w, "processed:   %d/%d\n", s.Processed, s.Total)
	_, _ = fmt.Fprintf(w, "found:       %d\n", s.Found)
	_, _ = fmt.Fprintf(w, "checked:     %d\n", s.Checked)
	_, _ = fmt.Fprintf(w, "failed:      %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "skipped:     %d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "emails:      %d\n", s.Emails)
	_, _ = fmt.Fprintf(w, "social:      %d\n", s.Social)
	if s.Unpersisted > 0 {
		_, _ = fmt.Fprintf(w, "unpersisted: %d\n", s.Unpersisted)
	}
	if s.Interrupted {
		_, _ = fmt.Fprintln(w, "interrupted: run stopped before every record was dispatched")
	}
	_, _ = fmt.Fprintf(w, "duration:    %s\n", s.Duration.Round(time.Millisecond))
}

// newExportCmd creates the 'export' subcommand.
func newExportCmd(c *cli) *cobra.Command {
	var format, name string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Exports harvested records to the configured sink",
		Long: `Writes every record that was harvested (found, checked or failed) or has
social profiles to the configured export sink as CSV or XLSX.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd.Context(), cmd.OutOrStdout(), c.app, format, name)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "csv or xlsx (default from config)")
	cmd.Flags().StringVar(&name, "name", "", "object name; defaults to a timestamped, content-addressed name")
	return cmd
}

func runExport(ctx context.Context, w io.Writer, services Services, format, name string) error {
	var f export.Format
	if format != "" {
		parsed, err := export.ParseFormat(format)
		if err != nil {
			return err
		}
		f = parsed
	}
	exporter, err := services.Exporter()
	if err != nil {
		return fmt.Errorf("build exporter: %w", err)
	}
	report, err := exporter.Export(ctx, f, name)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	_, _ = fmt.Fprintf(w, "exported %d records to %s\n", report.Rows, report.URI)
	return nil
}
