package extract

import (
	"bytes"
	"context"
	"net/http"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/extract/docx"
	"github.com/docuforge/ragcore/internal/extract/pdf"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// DetectMIME sniffs data's media type from its magic bytes, not a
// filename. net/http.DetectContentType resolves PDF directly via its
// "%PDF-" header, but only ever reports generic "application/zip" for
// an OOXML container, so DOCX needs the extra zip-entry probe below.
func DetectMIME(data []byte) string {
	sniffed := http.DetectContentType(data)
	if sniffed == MimePDF {
		return MimePDF
	}
	if looksLikeDOCX(data) {
		return MimeDOCX
	}
	return sniffed
}

// looksLikeDOCX checks for the zip local-file-header magic plus a
// `[Content_Types].xml` entry name, the cheapest reliable signal that
// a zip container is an OOXML wordprocessing document rather than an
// arbitrary zip archive.
func looksLikeDOCX(data []byte) bool {
	if len(data) < 4 || !bytes.Equal(data[:2], []byte("PK")) {
		return false
	}
	return bytes.Contains(data, []byte("[Content_Types].xml")) &&
		bytes.Contains(data, []byte("word/"))
}

// New returns the TextExtractor registered for mime, or
// UnsupportedMedia if none matches — the map-from-detected-MIME
// dispatch this factory replaces a filename-extension switch with.
func New(mime string) (adapter.TextExtractor, error) {
	switch mime {
	case MimePDF:
		return pdf.New(), nil
	case MimeDOCX:
		return docx.New(), nil
	default:
		return nil, apierr.UnsupportedMediaf("unsupported media type: %s", mime)
	}
}

// Extract is a convenience wrapper that detects the MIME type and
// dispatches to the matching extractor in one call.
func Extract(ctx context.Context, data []byte) (string, *adapter.ExtractResult, error) {
	mime := DetectMIME(data)
	extractor, err := New(mime)
	if err != nil {
		return mime, nil, err
	}
	result, err := extractor.Extract(ctx, data)
	return mime, result, err
}
