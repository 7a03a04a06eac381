package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDocumentXML = `<?xml version="1.0"?>
<document>
  <body>
    <p><r><t>Hello</t></r><r><t> world</t></r></p>
    <p><r><t>Second paragraph</t></r></p>
  </body>
</document>`

const sampleCoreXML = `<?xml version="1.0"?>
<coreProperties xmlns="http://schemas.openxmlformats.org/package/2006/metadata/core-properties">
  <creator>Jane Doe</creator>
  <created>2024-01-02T00:00:00Z</created>
</coreProperties>`

func buildDocx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractReadsParagraphTextAndMetadata(t *testing.T) {
	data := buildDocx(t, map[string]string{
		"word/document.xml": sampleDocumentXML,
		"docProps/core.xml": sampleCoreXML,
	})

	result, err := New().Extract(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, 1, result.PageCount)
	require.Len(t, result.Pages, 1)
	require.Contains(t, result.Pages[0].Text, "Hello world")
	require.Contains(t, result.Pages[0].Text, "Second paragraph")
	require.NotNil(t, result.Author)
	require.Equal(t, "Jane Doe", *result.Author)
}

func TestExtractWithoutCorePropertiesStillSucceeds(t *testing.T) {
	data := buildDocx(t, map[string]string{
		"word/document.xml": sampleDocumentXML,
	})

	result, err := New().Extract(context.Background(), data)
	require.NoError(t, err)
	require.Nil(t, result.Author)
}

func TestExtractRejectsNonZipData(t *testing.T) {
	_, err := New().Extract(context.Background(), []byte("not a zip file"))
	require.Error(t, err)
}

func TestExtractRejectsMissingDocumentPart(t *testing.T) {
	data := buildDocx(t, map[string]string{"README.txt": "irrelevant"})
	_, err := New().Extract(context.Background(), data)
	require.Error(t, err)
}
