// Package dialog wraps the host's native file picker and save dialogs.
package dialog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ncruces/zenity"
)

// ErrCanceled is returned when the user dismisses a dialog
var ErrCanceled = errors.New("dialog canceled")

// Prompter asks the user for files to upload and for where to save output
type Prompter interface {
	PickImages() ([]string, error)
	SaveArchive(defaultName string) (string, error)
}

// ImagePatterns are the file types offered by the picker
var ImagePatterns = []string{"*.jpg", "*.jpeg", "*.jfif", "*.png", "*.webp", "*.gif"}

// Native shows zenity dialogs
type Native struct {
	Title string
}

func NewNative() *Native {
	return &Native{Title: "Shoe Image Resizer"}
}

// PickImages opens a multi-select file picker filtered to supported images
func (n *Native) PickImages() ([]string, error) {
	selected, err := zenity.SelectFileMultiple(
		zenity.Title(n.Title+": select images"),
		zenity.FileFilters{
			{
				Name:     "Images",
				Patterns: ImagePatterns,
			},
		},
	)
	if err != nil {
		return nil, mapError(err, "file picker")
	}

	slog.Info("Files picked via native dialog", "count", len(selected))
	return selected, nil
}

// SaveArchive opens a save dialog prefilled with defaultName
func (n *Native) SaveArchive(defaultName string) (string, error) {
	selected, err := zenity.SelectFileSave(
		zenity.Title(n.Title+": save archive"),
		zenity.Filename(defaultName),
		zenity.ConfirmOverwrite(),
		zenity.FileFilters{
			{
				Name:     "Zip archives",
				Patterns: []string{"*.zip"},
			},
		},
	)
	if err != nil {
		return "", mapError(err, "save dialog")
	}

	if !strings.HasSuffix(strings.ToLower(selected), ".zip") {
		selected += ".zip"
	}
	return selected, nil
}

func mapError(err error, what string) error {
	if errors.Is(err, zenity.ErrCanceled) {
		return ErrCanceled
	}
	return fmt.Errorf("%s failed: %w", what, err)
}

// Fixed answers every prompt with preset values. It is used when running
// headless, where no native dialog can be shown.
type Fixed struct {
	Files       []string
	ArchivePath string
}

func (f Fixed) PickImages() ([]string, error) {
	if len(f.Files) == 0 {
		return nil, ErrCanceled
	}
	return f.Files, nil
}

func (f Fixed) SaveArchive(defaultName string) (string, error) {
	if f.ArchivePath == "" {
		return defaultName, nil
	}
	return f.ArchivePath, nil
}
