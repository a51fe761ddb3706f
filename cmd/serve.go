package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reelscout/internal/server"
)

var (
	flagAddr        string
	flagResourceTTL time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resolver as a JSON HTTP API",
	RunE:  serveRun,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "127.0.0.1:8080", "Listen address")
	serveCmd.Flags().DurationVar(&flagResourceTTL, "resource-ttl", 30*time.Minute, "How long relays of returned streams stay open")
}

func serveRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEngine()
	if err != nil {
		return err
	}

	api := server.New(server.Options{
		Runner:      e.runner,
		Registry:    e.registry,
		Gatherer:    e.gatherer,
		Logger:      logger,
		Exclude:     cfg.Exclude,
		ResourceTTL: flagResourceTTL,
		OnRun:       recordRun,
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              flagAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", flagAddr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
