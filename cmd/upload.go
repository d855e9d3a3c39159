package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/resizer/internal/config"
	"github.com/lehigh-university-libraries/resizer/internal/dialog"
	"github.com/lehigh-university-libraries/resizer/internal/export"
	"github.com/lehigh-university-libraries/resizer/internal/manifest"
	"github.com/lehigh-university-libraries/resizer/internal/models"
	"github.com/lehigh-university-libraries/resizer/internal/selection"
	"github.com/lehigh-university-libraries/resizer/internal/uploader"
	"github.com/spf13/cobra"
)

type uploadFlags struct {
	endpoint       string
	profile        string
	batchSize      int
	delay          time.Duration
	progressive    bool
	delayAfterLast bool
	timeout        time.Duration
	outDir         string
	zipPath        string
	pick           bool
	manifestPath   string
	zstd           bool
}

// uploadSettings is everything runUpload needs once flags and environment
// have been resolved
type uploadSettings struct {
	Options      uploader.Options
	Timeout      time.Duration
	Paths        []string
	Pick         bool
	OutDir       string
	ZipPath      string
	ManifestPath string
	Compression  export.Compression
}

func newUploadCmd() *cobra.Command {
	var flags uploadFlags

	cmd := &cobra.Command{
		Use:   "upload [files or directories...]",
		Short: "Upload images to the processing endpoint in batches",
		Long: `Uploads images to the processing endpoint in sequential batches.

Batches are sent one at a time with a pause between them. A batch that fails
(network error or non-2xx status) is logged and skipped; the remaining batches
still run. Results can be saved as individual files (--out), as a zip archive
(--zip), or both.

Profiles:
  sequential   1 file per request, no pause, results shown at the end
  batched      2 files per request, 500ms pause, results shown at the end
  progressive  4 files per request, 200ms pause, results shown as they arrive`,
		Example: `  # Upload a folder of photos and save a zip
  resizer upload ./photos --zip processed_images.zip

  # Pick files in a native dialog and choose where to save the archive
  resizer upload --pick --zip -

  # Send pairs with a one second pause to a remote server
  resizer upload a.jpg b.jpg c.jpg --endpoint https://resizer.example.edu/process --batch-size 2 --delay 1s

  # Keep a per-batch report
  resizer upload ./photos --out ./processed --manifest runs/today.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := resolveUploadSettings(cmd, flags, args)
			if err != nil {
				return err
			}
			return runUpload(cmd.Context(), cmd.OutOrStdout(), settings, dialog.NewNative())
		},
	}

	addUploadFlags(cmd, &flags)

	return cmd
}

func addUploadFlags(cmd *cobra.Command, flags *uploadFlags) {
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", config.DefaultEndpoint, "Processing endpoint URL (env RESIZER_ENDPOINT)")
	cmd.Flags().StringVar(&flags.profile, "profile", config.DefaultProfile, "Batching profile: sequential, batched or progressive (env RESIZER_PROFILE)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Files per request (overrides the profile)")
	cmd.Flags().DurationVar(&flags.delay, "delay", 0, "Pause between batches (overrides the profile)")
	cmd.Flags().BoolVar(&flags.progressive, "progressive", false, "Publish results after every batch (overrides the profile)")
	cmd.Flags().BoolVar(&flags.delayAfterLast, "delay-after-last", false, "Also pause after the final batch (overrides the profile)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", config.DefaultTimeout, "Per-request timeout (env RESIZER_TIMEOUT)")
	cmd.Flags().StringVarP(&flags.outDir, "out", "o", "", "Directory to save each processed image into")
	cmd.Flags().StringVar(&flags.zipPath, "zip", "", "Save all results as a zip archive at this path (- opens a save dialog)")
	cmd.Flags().BoolVar(&flags.pick, "pick", false, "Choose files with a native file picker")
	cmd.Flags().StringVar(&flags.manifestPath, "manifest", "", "Write a per-batch report (.yaml, .jsonl or .parquet)")
	cmd.Flags().BoolVar(&flags.zstd, "zstd", false, "Compress archive entries with Zstandard instead of deflate")
}

// resolveUploadSettings merges the profile, environment and explicit flags.
// Explicit flags win over the environment, which wins over defaults.
func resolveUploadSettings(cmd *cobra.Command, flags uploadFlags, args []string) (uploadSettings, error) {
	changed := cmd.Flags().Changed

	profileName := flags.profile
	if !changed("profile") {
		profileName = config.Env("RESIZER_PROFILE", config.DefaultProfile)
	}
	profile, err := config.LookupProfile(profileName)
	if err != nil {
		return uploadSettings{}, err
	}

	endpoint := flags.endpoint
	if !changed("endpoint") {
		endpoint = config.Env("RESIZER_ENDPOINT", config.DefaultEndpoint)
	}

	timeout := flags.timeout
	if !changed("timeout") {
		timeout, err = config.EnvDuration("RESIZER_TIMEOUT", config.DefaultTimeout)
		if err != nil {
			return uploadSettings{}, err
		}
	}

	opts := uploader.Options{
		Endpoint:       endpoint,
		BatchSize:      profile.BatchSize,
		Delay:          profile.Delay,
		Progressive:    profile.Progressive,
		DelayAfterLast: profile.DelayAfterLast,
		ClearOnStart:   true,
	}
	if changed("batch-size") {
		if flags.batchSize < 1 {
			return uploadSettings{}, fmt.Errorf("--batch-size must be at least 1")
		}
		opts.BatchSize = flags.batchSize
	}
	if changed("delay") {
		if flags.delay < 0 {
			return uploadSettings{}, fmt.Errorf("--delay cannot be negative")
		}
		opts.Delay = flags.delay
	}
	if changed("progressive") {
		opts.Progressive = flags.progressive
	}
	if changed("delay-after-last") {
		opts.DelayAfterLast = flags.delayAfterLast
	}

	compression := export.Deflate
	if flags.zstd {
		compression = export.Zstd
	}

	return uploadSettings{
		Options:      opts,
		Timeout:      timeout,
		Paths:        args,
		Pick:         flags.pick,
		OutDir:       flags.outDir,
		ZipPath:      flags.zipPath,
		ManifestPath: flags.manifestPath,
		Compression:  compression,
	}, nil
}

func runUpload(ctx context.Context, out io.Writer, settings uploadSettings, prompter dialog.Prompter) error {
	paths := settings.Paths
	if settings.Pick {
		picked, err := prompter.PickImages()
		if errors.Is(err, dialog.ErrCanceled) {
			fmt.Fprintln(out, "No files selected")
			return nil
		}
		if err != nil {
			return err
		}
		paths = append(paths, picked...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files given: pass image paths or use --pick")
	}

	files, err := selection.FromPaths(paths)
	if err != nil {
		return fmt.Errorf("failed to select files: %w", err)
	}

	controller := uploader.NewController(settings.Options, settings.Timeout)
	controller.Observer = uploader.NewLogObserver(slog.Default())

	result := controller.Run(ctx, files)
	images := controller.State.Images()

	if settings.OutDir != "" {
		saved := export.SaveImages(settings.OutDir, images)
		slog.Info("Saved processed images", "dir", settings.OutDir, "count", saved)
	}

	if settings.ZipPath != "" {
		exportArchive(settings.ZipPath, images, settings.Compression, prompter)
	}

	if settings.ManifestPath != "" {
		if err := manifest.Save(settings.ManifestPath, manifest.FromResult(&result)); err != nil {
			return fmt.Errorf("failed to save manifest: %w", err)
		}
	}

	printSummary(out, &result)
	return nil
}

// exportArchive saves the archive. Failures are logged, never returned: the
// processed images are already in hand and an archive problem must not turn
// the whole run into an error.
func exportArchive(zipPath string, images []models.ProcessedImage, compression export.Compression, prompter dialog.Prompter) {
	if len(images) == 0 {
		slog.Info("No processed images, skipping archive")
		return
	}

	if zipPath == "-" {
		chosen, err := prompter.SaveArchive(export.ArchiveName)
		if errors.Is(err, dialog.ErrCanceled) {
			slog.Info("Archive save canceled")
			return
		}
		if err != nil {
			slog.Error("Error choosing archive location", "err", err)
			return
		}
		zipPath = chosen
	}

	if err := export.SaveArchive(zipPath, images, export.ArchiveOptions{Compression: compression}); err != nil {
		slog.Error("Error generating zip file", "err", err)
	}
}

func printSummary(out io.Writer, result *models.RunResult) {
	failed := result.FailedBatches()

	fmt.Fprintf(out, "\nUpload complete!\n")
	fmt.Fprintf(out, "  Files selected:  %d\n", result.FileCount)
	fmt.Fprintf(out, "  Batches sent:    %d\n", len(result.Outcomes))
	fmt.Fprintf(out, "  Images returned: %d\n", len(result.Images))
	fmt.Fprintf(out, "  Failed batches:  %d\n", len(failed))
	for _, o := range failed {
		fmt.Fprintf(out, "    - batch %d (files %v): %s\n", o.Index+1, o.Files, o.Error)
	}
}
