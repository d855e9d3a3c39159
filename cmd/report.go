package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/resizer/internal/manifest"
	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report <manifest>",
		Short: "Summarize a run manifest",
		Long: `Reads a manifest written by "upload --manifest" and prints a summary of the
run: how many batches were sent, how many images came back and which batches
were dropped. The manifest format is picked from the file extension
(.yaml, .yml, .jsonl or .parquet).`,
		Example: `  resizer report runs/today.yaml
  resizer report runs/today.parquet --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return fmt.Errorf("failed to load manifest: %w", err)
			}
			return writeReport(cmd.OutOrStdout(), m, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or json")

	return cmd
}

type reportSummary struct {
	RunID         string         `json:"run_id"`
	Endpoint      string         `json:"endpoint"`
	Batches       int            `json:"batches"`
	Images        int            `json:"images"`
	FailedBatches []manifest.Row `json:"failed_batches"`
}

func summarize(m *manifest.Manifest) reportSummary {
	s := reportSummary{
		RunID:         m.Run.ID,
		Endpoint:      m.Run.Endpoint,
		Batches:       len(m.Batches),
		FailedBatches: []manifest.Row{},
	}
	for _, row := range m.Batches {
		if row.Failed() {
			s.FailedBatches = append(s.FailedBatches, row)
			continue
		}
		s.Images += row.Results
	}
	return s
}

func writeReport(w io.Writer, m *manifest.Manifest, format string) error {
	s := summarize(m)

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "text":
		fmt.Fprintf(w, "Run:      %s\n", s.RunID)
		fmt.Fprintf(w, "Endpoint: %s\n", s.Endpoint)
		fmt.Fprintf(w, "Batches:  %d\n", s.Batches)
		fmt.Fprintf(w, "Images:   %d\n", s.Images)
		fmt.Fprintf(w, "Failed:   %d\n", len(s.FailedBatches))
		for _, row := range s.FailedBatches {
			fmt.Fprintf(w, "  batch %d [%s]: %s\n", row.Batch+1, strings.Join(row.Files, ", "), failureReason(row))
		}
		return nil
	default:
		return fmt.Errorf("unknown report format %q (use text or json)", format)
	}
}

func failureReason(row manifest.Row) string {
	if row.Error != "" {
		return row.Error
	}
	return fmt.Sprintf("status %d", row.StatusCode)
}
