// Package pdftext extracts plain text from uploaded PDF documents.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrExtraction is wrapped by every ExtractionError.
var ErrExtraction = errors.New("text extraction failed")

// ExtractionError reports a document that could not be opened or parsed at all.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("text extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "text extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrExtraction, e.Err}
	}
	return []error{ErrExtraction}
}

// Document is the text content of a PDF.
type Document struct {
	Text      string
	PageCount int
}

// Extractor writes the upload to a temp file and reads it page by page.
// Zero value is ready to use and places temp files in os.TempDir.
type Extractor struct {
	TempDir string
}

// Extract returns the concatenated page text, each page followed by a newline.
// Pages that yield only whitespace or fail individually are skipped. The temp file is
// removed on every exit path.
func (e Extractor) Extract(ctx context.Context, data []byte) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &ExtractionError{Reason: "empty document"}
	}

	f, err := os.CreateTemp(e.TempDir, "finsight-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	return readFile(ctx, path)
}

func readFile(ctx context.Context, path string) (doc *Document, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = &ExtractionError{Reason: "unreadable document", Err: fmt.Errorf("%v", r)}
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, &ExtractionError{Reason: "cannot open document", Err: err}
	}
	defer f.Close()

	pages := r.NumPage()
	if pages == 0 {
		return nil, &ExtractionError{Reason: "document has no pages"}
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, ok := pageText(r, i)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return &Document{Text: sb.String(), PageCount: pages}, nil
}

// pageText reads one page, isolating a panic or error to that page.
func pageText(r *pdf.Reader, n int) (text string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("skipping unreadable pdf page", "page", n, "panic", rec)
			text, ok = "", false
		}
	}()

	p := r.Page(n)
	if p.V.IsNull() {
		return "", false
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		slog.Warn("skipping pdf page", "page", n, "error", err)
		return "", false
	}
	return text, true
}
