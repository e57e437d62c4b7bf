package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gomodmail/internal/api"
	"gomodmail/internal/logging"
	"gomodmail/internal/wire"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Discord and serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	log := logging.Get()

	log.Info("Initializing application...")
	app, cleanup, err := wire.InitializeApplication()
	if err != nil {
		return err
	}
	defer cleanup()

	app.Discord.Listen(app.Router)
	if err := app.Discord.Open(); err != nil {
		return err
	}
	defer app.Discord.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.Engine.RunSweeper(ctx, app.Config.Relay.SweepInterval)

	server := api.NewServer(app.Config, app.HTTP)
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		log.WithError(err).Error("Server failed")
	}

	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}

	log.Info("Server gracefully stopped")
	return nil
}
