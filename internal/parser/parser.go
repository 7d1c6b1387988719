package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var ErrUnsupportedFileType = errors.New("unsupported file type")

// Result is the extracted text of one file. PageOffsets holds the rune offset
// at which each page starts in Text; it is only set for page-aware formats.
type Result struct {
	Text        string
	Pages       int
	PageOffsets []int
	Degraded    bool
}

// PageAt returns the 1-based page containing rune offset, or 0 when the
// result carries no page information.
func (r *Result) PageAt(offset int) int {
	if len(r.PageOffsets) == 0 {
		return 0
	}
	page := 1
	for i, start := range r.PageOffsets {
		if offset < start {
			break
		}
		page = i + 1
	}
	return page
}

var plainTextTypes = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

type Parser struct {
	pdf TextExtractor
}

// New returns a Parser using pdf for PDF files. A nil extractor is replaced by
// NullTextExtractor so PDFs still degrade instead of failing.
func New(pdf TextExtractor) *Parser {
	if pdf == nil {
		pdf = NullTextExtractor{}
	}
	return &Parser{pdf: pdf}
}

// Parse extracts text from the file at path. fileType is an extension such as
// ".pdf" or "pdf"; when empty the extension of path is used.
func (p *Parser) Parse(path, fileType string) (*Result, error) {
	ext := normalizeExt(fileType)
	if ext == "" {
		ext = normalizeExt(filepath.Ext(path))
	}

	switch {
	case plainTextTypes[ext]:
		data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is resolved inside the session uploads dir
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		return &Result{Text: string(data), Pages: 1}, nil

	case ext == ".pdf":
		return p.parsePDF(path), nil

	default:
		data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is resolved inside the session uploads dir
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnsupportedFileType, ext, err)
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: %q is not valid UTF-8 text", ErrUnsupportedFileType, ext)
		}
		return &Result{Text: string(data), Pages: 1}, nil
	}
}

func (p *Parser) parsePDF(path string) *Result {
	name := filepath.Base(path)

	pages, err := p.pdf.Extract(path)
	if err != nil {
		slog.Warn("pdf extraction degraded", "file_name", name, "error", err)
		return degradedResult(name, err.Error())
	}

	var b strings.Builder
	offsets := make([]int, 0, len(pages))
	runes := 0
	for _, page := range pages {
		offsets = append(offsets, runes)
		b.WriteString(page)
		b.WriteString("\n")
		runes += utf8.RuneCountInString(page) + 1
	}

	text := b.String()
	if strings.TrimSpace(text) == "" {
		slog.Warn("pdf contained no extractable text", "file_name", name, "pages", len(pages))
		return degradedResult(name, "no extractable text layer")
	}

	return &Result{Text: text, Pages: len(pages), PageOffsets: offsets}
}

// degradedResult is the placeholder returned when a PDF cannot be read. It is
// never empty so callers can tell degraded extraction from an empty file.
func degradedResult(name, reason string) *Result {
	text := fmt.Sprintf("[PDF document: %s]\nText extraction was not available for this file (%s). "+
		"The document was uploaded, but its contents could not be read automatically.", name, reason)
	return &Result{Text: text, Pages: 1, Degraded: true}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
