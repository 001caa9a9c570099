// Package pdf extracts per-page plain text from PDF files.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/errs"
)

var pdfMagic = []byte("%PDF-")

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

var _ core.Extractor = (*Extractor)(nil)

// Extract reads the PDF at path and returns one record per page, in page
// order. The file must be readable, non-empty and carry the PDF magic header;
// documents whose whole text is blank are rejected as EmptyContent. Parser
// errors never escape raw, they come back wrapped as ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, path string) ([]core.Page, error) {
	if path == "" {
		return nil, errs.Wrapf(errs.ErrInvalidInput, "empty file path")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidInput, fmt.Errorf("read file: %w", err))
	}
	if len(data) == 0 {
		return nil, errs.Wrapf(errs.ErrInvalidInput, "pdf file is empty")
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, errs.Wrapf(errs.ErrInvalidInput, "file does not have a valid PDF signature")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errs.Wrap(errs.ErrExtraction, err)
	}

	total := reader.NumPage()
	pages := make([]core.Page, 0, total)
	var totalChars int

	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.ErrExtraction, err)
		}

		page := reader.Page(num)
		if page.V.IsNull() {
			pages = append(pages, core.Page{PageNumber: num})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, errs.Wrap(errs.ErrExtraction, fmt.Errorf("page %d: %w", num, err))
		}

		pages = append(pages, core.Page{
			PageNumber: num,
			Text:       text,
			CharCount:  len(text),
		})
		totalChars += len(strings.TrimSpace(text))
	}

	if totalChars == 0 {
		return nil, errs.Wrapf(errs.ErrEmptyContent, "no text found in PDF")
	}

	return pages, nil
}
