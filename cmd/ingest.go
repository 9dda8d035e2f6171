package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tesa/internal/bootstrap"
	"tesa/internal/bootstrap/logging"
	"tesa/internal/domain/finding"
	"tesa/internal/errs"
	"tesa/internal/usecase/findings"
)

// ingestCmd reads a batch of raw signals from a JSON file (same shape as
// the POST /api/signals body) and stores the normalized findings.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest threat signals from a JSON file",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *findings.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := app.InitStore(ctx); err != nil {
			return errs.Wrap(err, "initialize store")
		}

		file, _ := cmd.Flags().GetString("file")
		raw, err := os.ReadFile(file)
		if err != nil {
			return errs.Wrapf(err, "read signals file %q", file)
		}

		var req ingestSignalsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errs.Wrapf(err, "parse signals file %q", file)
		}

		signals := make([]finding.ThreatSignal, 0, len(req.Signals))
		for i, in := range req.Signals {
			signal, err := toDomainSignal(in)
			if err != nil {
				return errs.Wrapf(err, "signal %d", i)
			}
			signals = append(signals, signal)
		}

		items, err := svc.IngestSignals(ctx, signals)
		if err != nil {
			return errs.Wrap(err, "ingest signals")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "ingested %d findings\n", len(items)); err != nil {
			return errs.Wrap(err, "write ingest output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("file", "", "Path to a JSON file with {\"signals\": [...]}")
	_ = ingestCmd.MarkFlagRequired("file")
}
