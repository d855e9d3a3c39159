package uploader

import (
	"log/slog"

	"github.com/lehigh-university-libraries/resizer/internal/models"
)

// Observer is notified of state transitions during a run
type Observer interface {
	RunStarted(runID string, files, batches int)
	BatchCompleted(outcome models.BatchOutcome)
	ImagesAppended(images []models.ProcessedImage, total int)
	RunFinished(result *models.RunResult)
}

type nopObserver struct{}

func (nopObserver) RunStarted(string, int, int) {}
func (nopObserver) BatchCompleted(models.BatchOutcome) {}
func (nopObserver) ImagesAppended([]models.ProcessedImage, int) {}
func (nopObserver) RunFinished(*models.RunResult) {}

// LogObserver reports run progress through slog
type LogObserver struct {
	Logger  *slog.Logger
	batches int
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) RunStarted(runID string, files, batches int) {
	o.batches = batches
	o.Logger.Info("Uploading", "run_id", runID, "files", files, "batches", batches)
}

func (o *LogObserver) BatchCompleted(outcome models.BatchOutcome) {
	if !outcome.Succeeded() {
		o.Logger.Warn("Batch dropped",
			"batch", outcome.Index+1,
			"of", o.batches,
			"files", outcome.Files,
			"status", outcome.StatusCode,
			"error", outcome.Error)
		return
	}
	o.Logger.Info("Batch completed",
		"batch", outcome.Index+1,
		"of", o.batches,
		"results", outcome.Results,
		"duration", outcome.Duration)
}

func (o *LogObserver) ImagesAppended(images []models.ProcessedImage, total int) {
	o.Logger.Debug("Images appended", "added", len(images), "total", total)
}

func (o *LogObserver) RunFinished(result *models.RunResult) {
	o.Logger.Info("Run finished", "run_id", result.ID, "images", len(result.Images))
}
