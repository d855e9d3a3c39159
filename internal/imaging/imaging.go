// Package imaging implements the product-photo normalization pipeline used
// by the processing endpoint: flatten onto white, crop to the subject, scale
// to a fixed width and pad onto a square white canvas.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Settings for Process. The defaults produce a 2048x2048 canvas.
type Settings struct {
	// Tolerance is how far below pure white a channel must fall for the
	// pixel to count as part of the subject.
	Tolerance    int
	TargetWidth  int
	CanvasHeight int
	PadX         int
}

func DefaultSettings() Settings {
	return Settings{
		Tolerance:    50,
		TargetWidth:  1698,
		CanvasHeight: 2048,
		PadX:         175,
	}
}

// Decode reads any registered image format (JPEG/JFIF, PNG, GIF, WebP, BMP, TIFF)
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Flatten composites img onto an opaque white background
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// SubjectBounds returns the tightest rectangle containing every pixel with
// an RGB channel below 255-tolerance. ok is false for an all-white image.
func SubjectBounds(img image.Image, tolerance int) (rect image.Rectangle, ok bool) {
	tolerance = min(max(tolerance, 0), 255)
	threshold := uint32(255 - tolerance)
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1

	rgba, fast := img.(*image.RGBA)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var r, g, bl uint32
			if fast {
				i := rgba.PixOffset(x, y)
				r, g, bl = uint32(rgba.Pix[i]), uint32(rgba.Pix[i+1]), uint32(rgba.Pix[i+2])
			} else {
				r, g, bl, _ = img.At(x, y).RGBA()
				r, g, bl = r>>8, g>>8, bl>>8
			}
			if r >= threshold && g >= threshold && bl >= threshold {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}

	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// CropSubject crops img to its subject. An all-white image is returned as is.
func CropSubject(img image.Image, tolerance int) image.Image {
	rect, ok := SubjectBounds(img, tolerance)
	if !ok {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// ScaleToWidth resizes img to width, keeping its aspect ratio
func ScaleToWidth(img image.Image, width int) image.Image {
	b := img.Bounds()
	if b.Dx() == width || b.Dx() == 0 || width <= 0 {
		return img
	}

	height := int(float64(b.Dy()) * (float64(width) / float64(b.Dx())))
	height = max(height, 1)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Pad adds a white border of padX on the left and right and padY on the top
// and bottom. Negative padding trims the image by that amount on each side.
func Pad(img image.Image, padX, padY int) *image.RGBA {
	b := img.Bounds()
	width := max(b.Dx()+2*padX, 1)
	height := max(b.Dy()+2*padY, 1)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	target := image.Rect(padX, padY, padX+b.Dx(), padY+b.Dy())
	draw.Draw(dst, target, img, b.Min, draw.Src)
	return dst
}

// Process runs the full pipeline
func Process(img image.Image, s Settings) *image.RGBA {
	flat := Flatten(img)
	cropped := CropSubject(flat, s.Tolerance)
	scaled := ScaleToWidth(cropped, s.TargetWidth)

	padY := (s.CanvasHeight - scaled.Bounds().Dy()) / 2
	return Pad(scaled, s.PadX, padY)
}

// CropOnly flattens and crops without scaling or padding
func CropOnly(img image.Image, s Settings) image.Image {
	return CropSubject(Flatten(img), s.Tolerance)
}

// EncodePNGBase64 encodes img as PNG and returns it base64-encoded
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
