// Package extract turns corpus files into ordered content chunks.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"prepbot/internal/document"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFormatMismatch    = errors.New("file content does not match extension")
)

const (
	ExtPDF  = "pdf"
	ExtDOCX = "docx"
	ExtPPTX = "pptx"
	ExtCSV  = "csv"
)

type Extractor struct {
	openPDF pdfOpener
}

func New() *Extractor {
	return &Extractor{openPDF: openLedongthucPDF}
}

// Extension returns the lower-cased extension without the dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func Supported(path string) bool {
	switch Extension(path) {
	case ExtPDF, ExtDOCX, ExtPPTX, ExtCSV:
		return true
	}
	return false
}

// Extract reads the file at path and returns its chunks in document order.
// Every chunk carries metadata.source = path.
func (e *Extractor) Extract(ctx context.Context, path string) ([]document.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := Extension(path)
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := checkContainer(path, ext); err != nil {
		return nil, err
	}

	switch ext {
	case ExtPDF:
		return e.extractPDF(path)
	case ExtDOCX:
		return extractDOCX(path)
	case ExtPPTX:
		return extractPPTX(path)
	default:
		return extractCSV(path)
	}
}

// checkContainer sniffs the file so a renamed or truncated file fails before a parser sees it.
func checkContainer(path, ext string) error {
	var want string
	switch ext {
	case ExtPDF:
		want = "application/pdf"
	case ExtDOCX, ExtPPTX:
		want = "application/zip"
	default:
		return nil
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect content type: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(want) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s detected as %s", ErrFormatMismatch, ext, mt.String())
}

func textChunk(path, content, label string) document.Chunk {
	return document.Chunk{
		Content: content,
		Type:    document.TypeText,
		Metadata: document.Metadata{
			Source:    path,
			PageSlide: label,
		},
	}
}
