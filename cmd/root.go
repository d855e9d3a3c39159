package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "resizer",
		Short: "Batch product-photo resizer with an upload client and processing server",
		Long: `Resizer normalizes product photos (a shoe on a white background) for listings.

The upload command sends images to a processing endpoint in small batches and
saves the results individually or as a zip archive. The serve command runs that
processing endpoint: it crops each image to its subject, scales it and pads it
onto a square white canvas.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			setupLogging(verbose)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose || os.Getenv("RESIZER_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
