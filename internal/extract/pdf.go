package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"prepbot/internal/document"
)

// pageSource exposes 1-indexed page text. Pages without a content stream return "".
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

type pdfOpener func(path string) (pageSource, func() error, error)

type ledongthucPages struct {
	reader *pdf.Reader
}

func (p ledongthucPages) NumPage() int {
	return p.reader.NumPage()
}

func (p ledongthucPages) PageText(n int) (string, error) {
	page := p.reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func openLedongthucPDF(path string) (pageSource, func() error, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return ledongthucPages{reader: r}, f.Close, nil
}

// extractPDF emits one chunk per page with text, labelled "Page N".
func (e *Extractor) extractPDF(path string) (chunks []document.Chunk, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	pages, closeFn, err := e.openPDF(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer closeFn()

	for i := 1; i <= pages.NumPage(); i++ {
		text, err := pages.PageText(i)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		chunks = append(chunks, textChunk(path, text, fmt.Sprintf("Page %d", i)))
	}
	return chunks, nil
}
