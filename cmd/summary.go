package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"tesa/internal/bootstrap"
	"tesa/internal/bootstrap/logging"
	"tesa/internal/errs"
	"tesa/internal/usecase/findings"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show finding counts per risk bucket",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *findings.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := app.InitStore(ctx); err != nil {
			return errs.Wrap(err, "initialize store")
		}

		summary, err := svc.Summary(ctx)
		if err != nil {
			return errs.Wrap(err, "summarize findings")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(),
			"low=%d medium=%d high=%d critical=%d\n",
			summary.Low, summary.Medium, summary.High, summary.Critical); err != nil {
			return errs.Wrap(err, "write summary output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
