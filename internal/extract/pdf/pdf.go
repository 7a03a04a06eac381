// Package pdf implements adapter.TextExtractor for application/pdf
// using github.com/dslipak/pdf, grounded on the page-by-page
// GetPlainText loop in the rago processor service.
package pdf

import (
	"bytes"
	"context"

	"github.com/dslipak/pdf"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
)

// Extractor extracts text from PDF documents.
type Extractor struct{}

// New returns a PDF Extractor.
func New() *Extractor { return &Extractor{} }

// Extract reads every page of a PDF and returns its plain text,
// skipping pages that fail to decode rather than failing the whole
// document — a single corrupt page shouldn't sink an otherwise usable
// PDF.
func (e *Extractor) Extract(_ context.Context, data []byte) (*adapter.ExtractResult, error) {
	reader := bytes.NewReader(data)
	r, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return nil, apierr.Wrap(apierr.Validation, "open pdf", err)
	}

	result := &adapter.ExtractResult{PageCount: r.NumPage()}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		result.Pages = append(result.Pages, adapter.Page{Number: i, Text: text})
	}

	if info := r.Trailer().Key("Info"); !info.IsNull() {
		if author := info.Key("Author"); !author.IsNull() {
			a := author.Text()
			result.Author = &a
		}
		if created := info.Key("CreationDate"); !created.IsNull() {
			c := created.Text()
			result.CreationDate = &c
		}
	}

	return result, nil
}
