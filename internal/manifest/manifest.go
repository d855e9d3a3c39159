package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/resizer/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// RunInfo is the header section of a manifest
type RunInfo struct {
	ID          string `yaml:"id"`
	Endpoint    string `yaml:"endpoint"`
	BatchSize   int    `yaml:"batchsize"`
	Delay       string `yaml:"delay"`
	Progressive bool   `yaml:"progressive"`
	Files       int    `yaml:"files"`
	Images      int    `yaml:"images"`
	StartedAt   string `yaml:"startedat"`
	FinishedAt  string `yaml:"finishedat"`
}

// Row describes one batch of a run
type Row struct {
	RunID      string   `json:"run_id" yaml:"-" parquet:"run_id"`
	Endpoint   string   `json:"endpoint" yaml:"-" parquet:"endpoint"`
	Batch      int      `json:"batch" yaml:"batch" parquet:"batch"`
	StartIndex int      `json:"start_index" yaml:"startindex" parquet:"start_index"`
	Files      []string `json:"files" yaml:"files" parquet:"files,list"`
	StatusCode int      `json:"status_code" yaml:"statuscode" parquet:"status_code"`
	Results    int      `json:"results" yaml:"results" parquet:"results"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty" parquet:"error"`
	DurationMS int64    `json:"duration_ms" yaml:"durationms" parquet:"duration_ms"`
}

// Failed reports whether the batch was dropped
func (r Row) Failed() bool {
	return r.Error != "" || r.StatusCode < 200 || r.StatusCode >= 300
}

// Manifest is the complete report of one run
type Manifest struct {
	Run     RunInfo `yaml:"run"`
	Batches []Row   `yaml:"batches"`
}

// FromResult builds a manifest from a finished run
func FromResult(result *models.RunResult) *Manifest {
	m := &Manifest{
		Run: RunInfo{
			ID:          result.ID,
			Endpoint:    result.Endpoint,
			BatchSize:   result.BatchSize,
			Delay:       result.Delay.String(),
			Progressive: result.Progressive,
			Files:       result.FileCount,
			Images:      len(result.Images),
			StartedAt:   result.StartedAt.Format(time.RFC3339),
			FinishedAt:  result.FinishedAt.Format(time.RFC3339),
		},
		Batches: make([]Row, 0, len(result.Outcomes)),
	}

	for _, o := range result.Outcomes {
		m.Batches = append(m.Batches, Row{
			RunID:      result.ID,
			Endpoint:   result.Endpoint,
			Batch:      o.Index,
			StartIndex: o.StartIndex,
			Files:      o.Files,
			StatusCode: o.StatusCode,
			Results:    o.Results,
			Error:      o.Error,
			DurationMS: o.Duration.Milliseconds(),
		})
	}

	return m
}

// Save writes the manifest in the format implied by the path's extension
// (.yaml, .yml, .jsonl or .parquet)
func Save(path string, m *Manifest) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}

	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = saveYAML(path, m)
	case ".jsonl":
		err = saveJSONL(path, m)
	case ".parquet":
		err = saveParquet(path, m)
	default:
		return fmt.Errorf("unsupported manifest format: %s (supported: .yaml, .jsonl, .parquet)", ext)
	}
	if err != nil {
		return err
	}

	slog.Info("Manifest saved", "path", path, "batches", len(m.Batches))
	return nil
}

func saveYAML(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write YAML file: %w", err)
	}
	return nil
}

func saveJSONL(path string, m *Manifest) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	encoder := json.NewEncoder(w)
	for _, row := range m.Batches {
		if err := encoder.Encode(row); err != nil {
			return fmt.Errorf("failed to encode batch %d: %w", row.Batch, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	return file.Close()
}

func saveParquet(path string, m *Manifest) error {
	if err := parquet.WriteFile(path, m.Batches); err != nil {
		return fmt.Errorf("failed to write parquet file: %w", err)
	}
	return nil
}

// Load reads a manifest written by Save. JSONL and Parquet files only carry
// batch rows, so the run header is rebuilt from them.
func Load(path string) (*Manifest, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".jsonl":
		rows, err := loadJSONL(path)
		if err != nil {
			return nil, err
		}
		return fromRows(rows), nil
	case ".parquet":
		rows, err := loadParquet(path)
		if err != nil {
			return nil, err
		}
		return fromRows(rows), nil
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s (supported: .yaml, .jsonl, .parquet)", ext)
	}
}

func loadYAML(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	for i := range m.Batches {
		m.Batches[i].RunID = m.Run.ID
		m.Batches[i].Endpoint = m.Run.Endpoint
	}
	return &m, nil
}

func loadJSONL(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest file: %w", err)
	}
	defer file.Close()

	var rows []Row
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("failed to parse line %d: %w", lineNum, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	return rows, nil
}

func loadParquet(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var rows []Row
	for {
		buf := make([]Row, 64)
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("Read parquet manifest", "path", path, "rows", len(rows))
	return rows, nil
}

func fromRows(rows []Row) *Manifest {
	m := &Manifest{Batches: rows}
	if len(rows) > 0 {
		m.Run.ID = rows[0].RunID
		m.Run.Endpoint = rows[0].Endpoint
	}
	for _, row := range rows {
		m.Run.Files += len(row.Files)
		m.Run.Images += row.Results
	}
	return m
}
