package handlers

import (
	"fmt"
	"image"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/lehigh-university-libraries/resizer/internal/imaging"
	"github.com/lehigh-university-libraries/resizer/internal/models"
)

// imagesField is the repeated multipart field carrying uploaded files
const imagesField = "images"

// HandleProcess crops, scales and pads every uploaded image
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	h.handleImages(w, r, func(img image.Image) image.Image {
		return imaging.Process(img, h.settings)
	})
}

// HandleCrop only crops each image to its subject. It exists for debugging
// the subject detection.
func (h *Handler) HandleCrop(w http.ResponseWriter, r *http.Request) {
	h.handleImages(w, r, func(img image.Image) image.Image {
		return imaging.CropOnly(img, h.settings)
	})
}

func (h *Handler) handleImages(w http.ResponseWriter, r *http.Request, transform func(image.Image) image.Image) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		h.writeError(w, "Failed to parse multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("Unable to remove multipart temp files", "err", err)
		}
	}()

	files := r.MultipartForm.File[imagesField]
	processed := make([]models.ProcessedImage, 0, len(files))

	// A file that fails is logged and left out; the rest of the batch still succeeds.
	for _, header := range files {
		data, err := h.processFile(header, transform)
		if err != nil {
			slog.Error("Error processing image", "filename", header.Filename, "err", err)
			continue
		}
		processed = append(processed, models.ProcessedImage{
			Filename: header.Filename,
			Data:     data,
		})
	}

	slog.Info("Processed batch", "received", len(files), "processed", len(processed))
	h.writeJSON(w, processed)
}

func (h *Handler) processFile(header *multipart.FileHeader, transform func(image.Image) image.Image) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	img, format, err := imaging.Decode(file)
	if err != nil {
		return "", err
	}
	slog.Debug("Decoded image", "filename", header.Filename, "format", format, "bounds", img.Bounds())

	return imaging.EncodePNGBase64(transform(img))
}
