package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/lehigh-university-libraries/resizer/internal/dialog"
	"github.com/lehigh-university-libraries/resizer/internal/export"
	"github.com/lehigh-university-libraries/resizer/internal/handlers"
	"github.com/lehigh-university-libraries/resizer/internal/manifest"
	"github.com/lehigh-university-libraries/resizer/internal/uploader"
	"github.com/spf13/cobra"
)

// writeShoes writes small PNGs with a dark block on white into a temp dir
func writeShoes(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		img := image.NewRGBA(image.Rect(0, 0, 40, 30))
		for y := 0; y < 30; y++ {
			for x := 0; x < 40; x++ {
				c := color.RGBA{255, 255, 255, 255}
				if x >= 10 && x < 30 && y >= 5 && y < 25 {
					c = color.RGBA{30, 30, 30, 255}
				}
				img.SetRGBA(x, y, c)
			}
		}
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
	return dir
}

func newProcessingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handlers.New().Routes())
	t.Cleanup(srv.Close)
	return srv
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestRunUpload(t *testing.T) {
	srv := newProcessingServer(t)
	src := writeShoes(t, "a.png", "b.png", "c.png")
	work := t.TempDir()

	settings := uploadSettings{
		Options: uploader.Options{
			Endpoint:     srv.URL + "/process",
			BatchSize:    2,
			ClearOnStart: true,
		},
		Timeout:      time.Minute,
		Paths:        []string{src},
		OutDir:       filepath.Join(work, "out"),
		ZipPath:      filepath.Join(work, export.ArchiveName),
		ManifestPath: filepath.Join(work, "run.yaml"),
		Compression:  export.Deflate,
	}

	var out bytes.Buffer
	if err := runUpload(context.Background(), &out, settings, dialog.Fixed{}); err != nil {
		t.Fatalf("runUpload() error = %v", err)
	}

	summary := out.String()
	for _, want := range []string{"Files selected:  3", "Batches sent:    2", "Images returned: 3", "Failed batches:  0"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	want := []string{"a.png", "b.png", "c.png"}
	if got := zipEntries(t, settings.ZipPath); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("archive entries = %v, want %v", got, want)
	}

	for _, name := range want {
		if _, err := os.Stat(filepath.Join(settings.OutDir, name)); err != nil {
			t.Errorf("expected %s in output dir: %v", name, err)
		}
	}

	m, err := manifest.Load(settings.ManifestPath)
	if err != nil {
		t.Fatalf("manifest.Load() error = %v", err)
	}
	if len(m.Batches) != 2 {
		t.Fatalf("manifest has %d batches, want 2", len(m.Batches))
	}
	if m.Run.Images != 3 {
		t.Errorf("manifest images = %d, want 3", m.Run.Images)
	}
}

func TestRunUploadFailedBatchIsSkipped(t *testing.T) {
	src := writeShoes(t, "a.png", "b.png")
	work := t.TempDir()

	settings := uploadSettings{
		Options: uploader.Options{
			// nothing is listening here
			Endpoint:  "http://127.0.0.1:1/process",
			BatchSize: 2,
		},
		Timeout: 5 * time.Second,
		Paths:   []string{src},
		ZipPath: filepath.Join(work, export.ArchiveName),
	}

	var out bytes.Buffer
	if err := runUpload(context.Background(), &out, settings, dialog.Fixed{}); err != nil {
		t.Fatalf("runUpload() error = %v, failed batches should not fail the run", err)
	}
	if !strings.Contains(out.String(), "Failed batches:  1") {
		t.Errorf("summary should list the failed batch:\n%s", out.String())
	}
	if _, err := os.Stat(settings.ZipPath); !os.IsNotExist(err) {
		t.Errorf("no archive should be written when there are no results, stat err = %v", err)
	}
}

func TestRunUploadPick(t *testing.T) {
	srv := newProcessingServer(t)
	src := writeShoes(t, "picked.png")
	work := t.TempDir()

	settings := uploadSettings{
		Options: uploader.Options{Endpoint: srv.URL + "/process", BatchSize: 4},
		Timeout: time.Minute,
		Pick:    true,
		ZipPath: "-",
	}
	prompter := dialog.Fixed{
		Files:       []string{filepath.Join(src, "picked.png")},
		ArchivePath: filepath.Join(work, "chosen.zip"),
	}

	var out bytes.Buffer
	if err := runUpload(context.Background(), &out, settings, prompter); err != nil {
		t.Fatalf("runUpload() error = %v", err)
	}
	if got := zipEntries(t, prompter.ArchivePath); len(got) != 1 || got[0] != "picked.png" {
		t.Errorf("archive entries = %v, want [picked.png]", got)
	}
}

func TestRunUploadPickCanceled(t *testing.T) {
	var out bytes.Buffer
	settings := uploadSettings{Pick: true}
	if err := runUpload(context.Background(), &out, settings, dialog.Fixed{}); err != nil {
		t.Fatalf("runUpload() error = %v", err)
	}
	if !strings.Contains(out.String(), "No files selected") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunUploadNoFiles(t *testing.T) {
	var out bytes.Buffer
	if err := runUpload(context.Background(), &out, uploadSettings{}, dialog.Fixed{}); err == nil {
		t.Error("expected an error when no paths are given")
	}

	empty := t.TempDir()
	settings := uploadSettings{Paths: []string{empty}}
	if err := runUpload(context.Background(), &out, settings, dialog.Fixed{}); err == nil {
		t.Error("expected an error for a directory without images")
	}
}

func TestResolveUploadSettings(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		check   func(t *testing.T, s uploadSettings)
		wantErr bool
	}{
		{
			name: "defaults to progressive profile",
			check: func(t *testing.T, s uploadSettings) {
				if s.Options.BatchSize != 4 || s.Options.Delay != 200*time.Millisecond || !s.Options.Progressive {
					t.Errorf("options = %+v", s.Options)
				}
				if !s.Options.ClearOnStart {
					t.Error("runs should start from an empty collection")
				}
				if s.Options.Endpoint != "http://localhost:8888/process" {
					t.Errorf("endpoint = %q", s.Options.Endpoint)
				}
				if s.Timeout != 5*time.Minute {
					t.Errorf("timeout = %v", s.Timeout)
				}
			},
		},
		{
			name: "profile flag",
			args: []string{"--profile", "batched"},
			check: func(t *testing.T, s uploadSettings) {
				if s.Options.BatchSize != 2 || s.Options.Delay != 500*time.Millisecond || s.Options.Progressive {
					t.Errorf("options = %+v", s.Options)
				}
			},
		},
		{
			name: "explicit overrides beat the profile",
			args: []string{"--profile", "sequential", "--batch-size", "3", "--delay", "1s", "--progressive", "--zstd"},
			check: func(t *testing.T, s uploadSettings) {
				if s.Options.BatchSize != 3 || s.Options.Delay != time.Second || !s.Options.Progressive {
					t.Errorf("options = %+v", s.Options)
				}
				if s.Compression != export.Zstd {
					t.Errorf("compression = %v, want zstd", s.Compression)
				}
			},
		},
		{
			name: "environment",
			env: map[string]string{
				"RESIZER_ENDPOINT": "http://resizer.test/process",
				"RESIZER_PROFILE":  "sequential",
				"RESIZER_TIMEOUT":  "30",
			},
			check: func(t *testing.T, s uploadSettings) {
				if s.Options.Endpoint != "http://resizer.test/process" {
					t.Errorf("endpoint = %q", s.Options.Endpoint)
				}
				if s.Options.BatchSize != 1 {
					t.Errorf("batch size = %d, want 1", s.Options.BatchSize)
				}
				if s.Timeout != 30*time.Second {
					t.Errorf("timeout = %v", s.Timeout)
				}
			},
		},
		{
			name: "flag beats environment",
			args: []string{"--endpoint", "http://flag.test/process"},
			env:  map[string]string{"RESIZER_ENDPOINT": "http://env.test/process"},
			check: func(t *testing.T, s uploadSettings) {
				if s.Options.Endpoint != "http://flag.test/process" {
					t.Errorf("endpoint = %q", s.Options.Endpoint)
				}
			},
		},
		{
			name:    "unknown profile",
			args:    []string{"--profile", "turbo"},
			wantErr: true,
		},
		{
			name:    "zero batch size",
			args:    []string{"--batch-size", "0"},
			wantErr: true,
		},
		{
			name:    "bad timeout env",
			env:     map[string]string{"RESIZER_TIMEOUT": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"RESIZER_ENDPOINT", "RESIZER_PROFILE", "RESIZER_TIMEOUT"} {
				t.Setenv(key, tt.env[key])
			}

			cmd := &cobra.Command{Use: "upload"}
			var flags uploadFlags
			addUploadFlags(cmd, &flags)
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}

			s, err := resolveUploadSettings(cmd, flags, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveUploadSettings() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestUploadCommand(t *testing.T) {
	srv := newProcessingServer(t)
	src := writeShoes(t, "one.png", "two.png")
	outDir := filepath.Join(t.TempDir(), "processed")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{
		"upload", src,
		"--endpoint", srv.URL + "/process",
		"--profile", "sequential",
		"--out", outDir,
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("upload command error = %v\n%s", err, out.String())
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("output dir has %d files, want 2", len(entries))
	}
	if !strings.Contains(out.String(), "Batches sent:    2") {
		t.Errorf("sequential profile should send one request per file:\n%s", out.String())
	}
}
