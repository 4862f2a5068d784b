package extract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/mirefly/ragdex/internal/pkg/errors"
	"github.com/mirefly/ragdex/internal/model"
)

func TestTextPlain(t *testing.T) {
	out, err := Text(model.FormatText, []byte("hello\r\nworld\n"))
	require.NoError(t, err)
	require.Equal(t, "hello\nworld", out)
}

func TestTextStripsBOM(t *testing.T) {
	out, err := Text(model.FormatMarkdown, append([]byte{0xEF, 0xBB, 0xBF}, []byte("# title")...))
	require.NoError(t, err)
	require.Equal(t, "# title", out)
}

func TestTextEmpty(t *testing.T) {
	_, err := Text(model.FormatText, nil)
	require.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestTextUnknownFormat(t *testing.T) {
	_, err := Text("rtf", []byte("{\\rtf1}"))
	require.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestTextDocx(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out, err := Text(model.FormatDocx, buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "First paragraph.\nSecond paragraph.", out)
}

func TestTextDocxMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = Text(model.FormatDocx, buf.Bytes())
	require.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestTextPDFGarbage(t *testing.T) {
	_, err := Text(model.FormatPDF, []byte("not a pdf at all"))
	require.Error(t, err)
}
