package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/psds-microservice/support-chat-service/internal/application"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP API and websocket server",
	RunE:  runAPI,
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.NewAPI(ctx, cfg, log)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
