package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/resizer/internal/models"
	"github.com/lehigh-university-libraries/resizer/internal/selection"
	"github.com/lehigh-university-libraries/resizer/internal/storage"
)

// Options controls how a run is batched and throttled
type Options struct {
	Endpoint  string
	BatchSize int
	// Delay is the pause between consecutive batches.
	Delay time.Duration
	// DelayAfterLast also pauses after the final batch.
	DelayAfterLast bool
	// Progressive publishes each batch's images as soon as it completes.
	// Otherwise results are buffered and published once the run ends.
	Progressive bool
	// ClearOnStart empties the visible collection when the run begins.
	ClearOnStart bool
}

// Controller uploads a file selection to the processing endpoint in
// sequential batches and accumulates the returned images
type Controller struct {
	HTTPClient *http.Client
	State      *storage.RunState
	Observer   Observer

	opts  Options
	sleep func(ctx context.Context, d time.Duration)
	runMu sync.Mutex
}

// NewController creates a controller with its own run state
func NewController(opts Options, timeout time.Duration) *Controller {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Controller{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		State:    storage.New(),
		Observer: nopObserver{},
		opts:     opts,
		sleep:    sleepContext,
	}
}

// Options returns the controller's batching options
func (c *Controller) Options() Options {
	return c.opts
}

// Run uploads files batch by batch. It never fails: a batch that errors is
// logged, recorded in the outcomes and left out of the collection, and the
// run moves on to the next batch. An empty selection is a no-op and leaves
// the current state untouched.
func (c *Controller) Run(ctx context.Context, files selection.Set) models.RunResult {
	if files.Len() == 0 {
		return models.RunResult{}
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()

	batches := Partition(files, c.opts.BatchSize)
	result := models.RunResult{
		ID:          uuid.NewString(),
		Endpoint:    c.opts.Endpoint,
		BatchSize:   c.opts.BatchSize,
		Delay:       c.opts.Delay,
		Progressive: c.opts.Progressive,
		FileCount:   files.Len(),
		StartedAt:   time.Now(),
		Images:      []models.ProcessedImage{},
		Outcomes:    make([]models.BatchOutcome, 0, len(batches)),
	}

	c.State.SetBusy(true)
	if c.opts.ClearOnStart || c.opts.Progressive {
		c.State.Reset()
	}
	c.Observer.RunStarted(result.ID, files.Len(), len(batches))

	slog.Info("Starting upload run",
		"run_id", result.ID,
		"files", files.Len(),
		"batches", len(batches),
		"batch_size", c.opts.BatchSize,
		"delay", c.opts.Delay,
		"progressive", c.opts.Progressive)

	for i, batch := range batches {
		images, outcome := c.sendBatch(ctx, batch)
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Succeeded() {
			result.Images = append(result.Images, images...)
			if c.opts.Progressive {
				c.State.Append(images...)
				c.Observer.ImagesAppended(images, c.State.Len())
			}
		}
		c.Observer.BatchCompleted(outcome)

		if i < len(batches)-1 || c.opts.DelayAfterLast {
			c.sleep(ctx, c.opts.Delay)
		}
	}

	if !c.opts.Progressive {
		c.State.Replace(result.Images)
		c.Observer.ImagesAppended(result.Images, c.State.Len())
	}

	result.FinishedAt = time.Now()
	c.State.SetBusy(false)
	c.Observer.RunFinished(&result)

	slog.Info("Upload run finished",
		"run_id", result.ID,
		"images", len(result.Images),
		"failed_batches", len(result.FailedBatches()),
		"elapsed", result.FinishedAt.Sub(result.StartedAt))

	return result
}

// sendBatch posts one batch and decodes the endpoint's response. Any failure
// is reported through the outcome, never returned.
func (c *Controller) sendBatch(ctx context.Context, batch Batch) ([]models.ProcessedImage, models.BatchOutcome) {
	start := time.Now()
	outcome := models.BatchOutcome{
		Index:      batch.Index,
		StartIndex: batch.Start,
		Files:      batch.Files.Names(),
	}
	fail := func(err error) ([]models.ProcessedImage, models.BatchOutcome) {
		outcome.Error = err.Error()
		outcome.Duration = time.Since(start)
		return nil, outcome
	}

	body, contentType, err := encodeBatch(batch)
	if err != nil {
		slog.Error("Unable to build batch request", "batch_start", batch.Start, "err", err)
		return fail(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, body)
	if err != nil {
		slog.Error("Unable to create batch request", "batch_start", batch.Start, "err", err)
		return fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		slog.Error("Error uploading batch", "batch_start", batch.Start, "err", err)
		return fail(fmt.Errorf("failed to upload batch: %w", err))
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		slog.Error("Batch failed", "batch_start", batch.Start, "status", resp.StatusCode)
		return fail(fmt.Errorf("batch starting at file %d failed with status %d", batch.Start, resp.StatusCode))
	}

	var images []models.ProcessedImage
	if err := json.NewDecoder(resp.Body).Decode(&images); err != nil {
		slog.Error("Unable to decode batch response", "batch_start", batch.Start, "err", err)
		return fail(fmt.Errorf("failed to decode response: %w", err))
	}

	outcome.Results = len(images)
	outcome.Duration = time.Since(start)
	slog.Debug("Batch processed", "batch_start", batch.Start, "files", batch.Files.Len(), "results", len(images))

	return images, outcome
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
