package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"churn-ops-dashboard/internal/actions"
	"churn-ops-dashboard/internal/tui"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Open the interactive customer table",
	Long: `Opens a full screen customer table. Rows can be sorted, filtered, paged,
selected and reordered; selected customers can be notified (N) or rescored (P).
The key bindings are listed at the bottom of the screen.`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	loader, release, err := customerLoader()
	if err != nil {
		return err
	}
	defer release()

	client, err := backendClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("starting table browser", zap.String("source", cfg.CustomerSource), zap.Int("page_size", cfg.DefaultPage))
	return tui.Run(ctx, loader, actions.NewDispatcher(client), tui.Options{
		PageSize:      cfg.DefaultPage,
		ActionTimeout: cfg.APITimeout,
	})
}
