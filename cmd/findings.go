package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tesa/internal/bootstrap"
	"tesa/internal/bootstrap/logging"
	"tesa/internal/errs"
	"tesa/internal/usecase/findings"
)

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "List stored findings, oldest of the window first",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *findings.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := app.InitStore(ctx); err != nil {
			return errs.Wrap(err, "initialize store")
		}

		limit, _ := cmd.Flags().GetInt("limit")
		items, err := svc.List(ctx, limit)
		if err != nil {
			return errs.Wrap(err, "list findings")
		}

		writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "TIME\tSEVERITY\tSCORE\tDOMAIN\tSOURCE\tTITLE")
		for _, item := range items {
			fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\t%s\n",
				item.Time.Format(time.RFC3339),
				item.Severity,
				item.RiskScore,
				item.Domain,
				item.Source,
				item.Title,
			)
		}
		if err := writer.Flush(); err != nil {
			return errs.Wrap(err, "write findings output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(findingsCmd)

	findingsCmd.Flags().Int("limit", findings.DefaultListLimit, "Maximum number of findings to return")
}
