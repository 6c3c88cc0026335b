package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"

	"prepbot/internal/document"
)

type docxDocument struct {
	Body struct {
		Paragraphs []textParagraph `xml:"p"`
	} `xml:"body"`
}

// extractDOCX emits exactly one chunk: the non-blank body paragraphs joined by newlines.
// A document without text still yields one chunk with empty content.
func extractDOCX(path string) ([]document.Chunk, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	raw, err := readZipEntry(indexZip(&zr.Reader), "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}

	var doc docxDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var lines []string
	for _, p := range doc.Body.Paragraphs {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		lines = append(lines, p.Text)
	}

	content := strings.TrimSpace(strings.Join(lines, "\n"))
	return []document.Chunk{textChunk(path, content, "")}, nil
}
