package models

import "time"

// ProcessedImage is one result returned by the processing endpoint
type ProcessedImage struct {
	Filename string `json:"filename"`
	Data     string `json:"data"` // base64-encoded PNG
}

// BatchOutcome records what happened to a single batch during a run
type BatchOutcome struct {
	Index      int           `json:"index" yaml:"index"`
	StartIndex int           `json:"start_index" yaml:"startindex"`
	Files      []string      `json:"files" yaml:"files"`
	StatusCode int           `json:"status_code" yaml:"statuscode"` // 0 when the request never got a response
	Results    int           `json:"results" yaml:"results"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Succeeded reports whether the batch contributed results to the run
func (o BatchOutcome) Succeeded() bool {
	return o.Error == "" && o.StatusCode >= 200 && o.StatusCode < 300
}

// RunResult is the full record of one upload run
type RunResult struct {
	ID          string           `json:"id"`
	Endpoint    string           `json:"endpoint"`
	BatchSize   int              `json:"batch_size"`
	Delay       time.Duration    `json:"delay"`
	Progressive bool             `json:"progressive"`
	FileCount   int              `json:"file_count"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Images      []ProcessedImage `json:"-"`
	Outcomes    []BatchOutcome   `json:"outcomes"`
}

// FailedBatches returns the outcomes of batches that were dropped
func (r *RunResult) FailedBatches() []BatchOutcome {
	var failed []BatchOutcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}
