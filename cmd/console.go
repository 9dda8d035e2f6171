package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"tesa/internal/bootstrap"
	"tesa/internal/bootstrap/logging"
	"tesa/internal/errs"
	"tesa/internal/usecase/findings"
	"tesa/internal/usecase/findingsconsole"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the findings terminal console",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *findings.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := app.InitStore(ctx); err != nil {
			return errs.Wrap(err, "initialize store")
		}

		limit, _ := cmd.Flags().GetInt("limit")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")

		model := findingsconsole.NewModel(ctx, svc, findingsconsole.Options{
			Limit:           limit,
			RefreshInterval: refreshInterval,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run findings console")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(consoleCmd)

	consoleCmd.Flags().Int("limit", findings.DefaultListLimit, "Maximum findings shown")
	consoleCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
}
