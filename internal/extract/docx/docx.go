// Package docx implements adapter.TextExtractor for
// application/vnd.openxmlformats-officedocument.wordprocessingml.document
// files. No library in the retrieved example pack parses OOXML, so
// this extractor reads the zip container and walks the
// word/document.xml part directly with the standard library —
// DOCX is just a zip of XML parts, and the paragraph/run structure
// needed to recover plain text is shallow enough that archive/zip
// plus encoding/xml is the natural tool rather than a reason to pull
// in a whole office-document dependency.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
)

// Extractor extracts text from .docx documents.
type Extractor struct{}

// New returns a DOCX Extractor.
func New() *Extractor { return &Extractor{} }

// wordDocument mirrors just enough of word/document.xml's shape to
// recover paragraph text in reading order: a body made of paragraphs,
// each made of runs, each run carrying zero or more text nodes.
type wordDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Value string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

type coreProperties struct {
	Creator string `xml:"creator"`
	Created string `xml:"created"`
}

// Extract unzips the docx container and returns its text as a single
// page — OOXML doesn't expose a native page boundary the way PDF
// does, so the whole document is treated as page 1.
func (e *Extractor) Extract(_ context.Context, data []byte) (*adapter.ExtractResult, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apierr.Wrap(apierr.Validation, "open docx zip container", err)
	}

	body, err := readPart(zr, "word/document.xml")
	if err != nil {
		return nil, apierr.Wrap(apierr.Validation, "read word/document.xml", err)
	}

	var doc wordDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, apierr.Wrap(apierr.Validation, "parse word/document.xml", err)
	}

	var sb strings.Builder
	for _, p := range doc.Body.Paragraphs {
		for _, r := range p.Runs {
			for _, t := range r.Text {
				sb.WriteString(t.Value)
			}
		}
		sb.WriteString("\n")
	}

	result := &adapter.ExtractResult{
		PageCount: 1,
		Pages:     []adapter.Page{{Number: 1, Text: sb.String()}},
	}

	if props, err := readPart(zr, "docProps/core.xml"); err == nil {
		var core coreProperties
		if err := xml.Unmarshal(props, &core); err == nil {
			if core.Creator != "" {
				result.Author = &core.Creator
			}
			if core.Created != "" {
				result.CreationDate = &core.Created
			}
		}
	}

	return result, nil
}

func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, apierr.NotFoundf("zip part not found: %s", name)
}
