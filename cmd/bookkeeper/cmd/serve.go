package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeper/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only reporting API and mapping creation over HTTP",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustOpenApp(ctx)
		defer a.Close()

		addr := cfg.HTTPAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		logger := slog.Default()
		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.New(a.reports, a.mappings, a.store, cfg.FunctionalCurrency, logger).Handler(),
			ReadTimeout:       5 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("bookkeeper listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctxShutdown); err != nil {
				logger.Error("server shutdown error", "err", err)
			}
		case err := <-errCh:
			logger.Error("server error", "err", err)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")
}
