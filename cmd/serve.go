package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/resizer/internal/config"
	"github.com/lehigh-university-libraries/resizer/internal/handlers"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the image processing server",
		Long: `Starts the processing endpoint on the specified port.

POST /process accepts a multipart form with one or more "images" parts and
returns a JSON array of {filename, data} where data is a base64 PNG: the
subject cropped, scaled to 1698px wide and padded to a 2048px square.
POST /crop returns the cropped images only.`,
		Example: `  # Start server on default port 8888
  resizer serve

  # Start server on custom port
  resizer serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("port") {
				port = config.Env("RESIZER_PORT", config.DefaultPort)
			}

			handler := handlers.New()

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Processing server available", "addr", addr, "url", "http://localhost"+addr+"/process")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give in-flight batches time to finish
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", config.DefaultPort, "Port to listen on (env RESIZER_PORT)")

	return cmd
}
