package uploader

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/lehigh-university-libraries/resizer/internal/selection"
)

// FormField is the multipart field name the processing endpoint reads files from
const FormField = "images"

// Batch is a contiguous run of selected files sent in a single request
type Batch struct {
	Index int
	Start int // position of the first file in the original selection
	Files selection.Set
}

// Partition splits files into contiguous batches of at most size files,
// keeping selection order. A size below 1 is treated as 1.
func Partition(files selection.Set, size int) []Batch {
	if size < 1 {
		size = 1
	}

	batches := make([]Batch, 0, (files.Len()+size-1)/size)
	for start := 0; start < files.Len(); start += size {
		end := min(start+size, files.Len())
		batches = append(batches, Batch{
			Index: len(batches),
			Start: start,
			Files: files.Slice(start, end),
		})
	}
	return batches
}

// encodeBatch packages every file of the batch as a repeated "images" part
func encodeBatch(b Batch) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for i := 0; i < b.Files.Len(); i++ {
		f := b.Files.At(i)
		if err := writePart(writer, f); err != nil {
			return nil, "", fmt.Errorf("failed to add %s to request: %w", f.Name(), err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

func writePart(writer *multipart.Writer, f selection.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	part, err := writer.CreateFormFile(FormField, f.Name())
	if err != nil {
		return err
	}

	_, err = io.Copy(part, rc)
	return err
}
