// Package selection captures the ordered set of files chosen for an upload run.
package selection

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoFiles is returned when a selection would contain no files
var ErrNoFiles = errors.New("no files selected")

// File is an opaque handle to one selected file
type File interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// Set is an immutable ordered sequence of selected files
type Set struct {
	files []File
}

// New captures files into a Set. The slice is copied so later changes by the
// caller do not leak into a running upload.
func New(files ...File) Set {
	captured := make([]File, len(files))
	copy(captured, files)
	return Set{files: captured}
}

// Len returns the number of files in the set
func (s Set) Len() int {
	return len(s.files)
}

// At returns the file at position i
func (s Set) At(i int) File {
	return s.files[i]
}

// Slice returns the files in [start, end) as a new Set
func (s Set) Slice(start, end int) Set {
	return New(s.files[start:end]...)
}

// Names returns the file names in selection order
func (s Set) Names() []string {
	names := make([]string, len(s.files))
	for i, f := range s.files {
		names[i] = f.Name()
	}
	return names
}

// diskFile reads from the local filesystem on demand
type diskFile struct {
	path string
}

func (f diskFile) Name() string {
	return filepath.Base(f.path)
}

func (f diskFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// memFile holds its content in memory
type memFile struct {
	name string
	data []byte
}

func (f memFile) Name() string {
	return f.name
}

func (f memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// Bytes wraps in-memory content as a File
func Bytes(name string, data []byte) File {
	return memFile{name: name, data: data}
}

// FromPaths builds a Set from file and directory paths. Directories are
// expanded to the supported images they directly contain, in lexical order.
func FromPaths(paths []string) (Set, error) {
	var files []File
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return Set{}, fmt.Errorf("failed to stat %s: %w", p, err)
		}

		if !info.IsDir() {
			files = append(files, diskFile{path: p})
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return Set{}, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !IsSupportedImage(entry.Name()) {
				continue
			}
			files = append(files, diskFile{path: filepath.Join(p, entry.Name())})
		}
	}

	if len(files) == 0 {
		return Set{}, ErrNoFiles
	}

	return New(files...), nil
}

// SupportedExtensions lists the image types the processing endpoint accepts
var SupportedExtensions = []string{".jpg", ".jpeg", ".jfif", ".png", ".webp", ".gif"}

// IsSupportedImage reports whether name has a supported image extension
func IsSupportedImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}
