package parser

import (
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

var ErrExtractorUnavailable = errors.New("text extractor unavailable")

// TextExtractor returns the plain text of each page of a document, in order.
type TextExtractor interface {
	Extract(path string) ([]string, error)
}

// NullTextExtractor always reports itself unavailable.
type NullTextExtractor struct{}

func (NullTextExtractor) Extract(string) ([]string, error) {
	return nil, ErrExtractorUnavailable
}

type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads every page of the PDF at path. Pages whose text cannot be
// decoded are returned empty so page numbering stays aligned.
func (e *PDFExtractor) Extract(path string) (pages []string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
