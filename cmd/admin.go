package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/app"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

const listLimit = 10

func newResetStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-status",
		Short: "Marks every record with a website pending again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.app.ResetStatus(cmd.Context())
			if err != nil {
				return err
			}
			c.app.Logger().Info("records reset to pending", zap.Int64("count", n))
			return nil
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists the first records with websites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, total, err := c.app.Store().List(cmd.Context(), listLimit)
			if err != nil {
				return fmt.Errorf("list records: %w", err)
			}
			logger := c.app.Logger()
			logger.Info("records with websites", zap.Int64("total", total))
			for _, rec := range records {
				logger.Info("record",
					zap.String("record_id", rec.ID),
					zap.String("business", rec.BusinessName),
					zap.String("website", rec.Website),
					zap.String("status", string(rec.Status)),
				)
			}
			if more := total - int64(len(records)); more > 0 {
				logger.Info(fmt.Sprintf("... and %d more", more))
			}
			return nil
		},
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Logs record store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := c.app.Store().Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("read stats: %w", err)
			}
			app.LogStats(c.app.Logger(), "store stats", stats)
			return nil
		},
	}
}

func newTestURLCmd(c *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "test-url <website>",
		Short: "Dry-runs a harvest of one website without touching the store",
		Long: `Harvests a single website through the full pipeline and prints the ranked
emails with their scores, the social profiles and the final status. Nothing
is read from or written to the record store. Exits 1 when the harvest failed.`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotationStore: storeNone},
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.app.DryRun(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			if result.Status == harvest.StatusFailed {
				if result.Err != nil {
					return fmt.Errorf("harvest %s failed: %w", args[0], result.Err)
				}
				return fmt.Errorf("harvest %s failed", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "business name used in logs")
	return cmd
}

func printResult(cmd *cobra.Command, r harvest.Result) {
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "website: %s\n", r.Website)
	_, _ = fmt.Fprintf(w, "status:  %s\n", r.Status)
	_, _ = fmt.Fprintf(w, "pages:   %d\n", r.PagesVisited)
	if r.Err != nil {
		_, _ = fmt.Fprintf(w, "error:   %v\n", r.Err)
	}
	_, _ = fmt.Fprintf(w, "emails (%d):\n", len(r.Scored))
	for i, e := range r.Scored {
		_, _ = fmt.Fprintf(w, "  %d. %s (score %d)\n", i+1, e.Address, e.Score)
	}
	platforms := make([]string, 0, len(r.SocialProfiles))
	for p := range r.SocialProfiles {
		platforms = append(platforms, string(p))
	}
	sort.Strings(platforms)
	_, _ = fmt.Fprintf(w, "social profiles (%d):\n", len(platforms))
	for _, p := range platforms {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", p, r.SocialProfiles[harvest.Platform(p)])
	}
}
