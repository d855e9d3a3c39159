package export

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/lehigh-university-libraries/resizer/internal/models"
)

// ArchiveName is the default file name for a full export
const ArchiveName = "processed_images.zip"

// ErrNothingToExport is returned when there are no images to export
var ErrNothingToExport = errors.New("no processed images to export")

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7)
const zipMethodZstd uint16 = 93

// Compression selects how archive entries are compressed
type Compression int

const (
	Deflate Compression = iota
	Zstd
)

// ArchiveOptions controls archive construction
type ArchiveOptions struct {
	Compression Compression
}

// Decode returns the raw bytes of a processed image
func Decode(img models.ProcessedImage) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", img.Filename, err)
	}
	return data, nil
}

// EntryName reduces a server-supplied filename to a safe base name
func EntryName(filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	return name, nil
}

// WriteArchive writes a zip with one entry per image, named by its filename
// and holding its decoded bytes. When two images share a name the later one
// wins, matching how the web client built its archive.
func WriteArchive(w io.Writer, images []models.ProcessedImage, opts ArchiveOptions) error {
	if len(images) == 0 {
		return ErrNothingToExport
	}

	names := make([]string, len(images))
	last := make(map[string]int, len(images))
	for i, img := range images {
		name, err := EntryName(img.Filename)
		if err != nil {
			return err
		}
		names[i] = name
		last[name] = i
	}

	zw := zip.NewWriter(w)
	method := zip.Deflate
	if opts.Compression == Zstd {
		method = zipMethodZstd
		zw.RegisterCompressor(zipMethodZstd, func(out io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		})
	}

	modified := time.Now()
	for i, img := range images {
		if last[names[i]] != i {
			continue
		}

		data, err := Decode(img)
		if err != nil {
			return err
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names[i],
			Method:   method,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("failed to create archive entry %s: %w", names[i], err)
		}
		if _, err := entry.Write(data); err != nil {
			return fmt.Errorf("failed to write archive entry %s: %w", names[i], err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// SaveArchive writes the archive to path. The file only appears once the
// archive is complete. An empty collection returns ErrNothingToExport and
// creates nothing.
func SaveArchive(archivePath string, images []models.ProcessedImage, opts ArchiveOptions) error {
	if len(images) == 0 {
		return ErrNothingToExport
	}

	dir := filepath.Dir(archivePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".processed-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := WriteArchive(tmp, images, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp archive: %w", err)
	}

	if err := os.Rename(tmpPath, archivePath); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}

	slog.Info("Archive saved", "path", archivePath, "images", len(images))
	return nil
}

// SaveImage writes one image's decoded bytes into dir under its filename and
// returns the written path
func SaveImage(dir string, img models.ProcessedImage) (string, error) {
	name, err := EntryName(img.Filename)
	if err != nil {
		return "", err
	}

	data, err := Decode(img)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outPath := filepath.Join(dir, name)
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	return outPath, nil
}

// SaveImages writes every image into dir. An image that cannot be written is
// logged and skipped; the count of written files is returned.
func SaveImages(dir string, images []models.ProcessedImage) int {
	saved := 0
	for _, img := range images {
		outPath, err := SaveImage(dir, img)
		if err != nil {
			slog.Error("Unable to save image", "filename", img.Filename, "err", err)
			continue
		}
		slog.Debug("Image saved", "path", outPath)
		saved++
	}
	return saved
}
