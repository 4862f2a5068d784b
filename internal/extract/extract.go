// Package extract turns uploaded document bytes into plain text for
// chunking. Formats follow the upload surface's declared type; the engine
// does no sniffing.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mirefly/ragdex/internal/model"
	apperrors "github.com/mirefly/ragdex/internal/pkg/errors"
)

func Text(format string, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty document", apperrors.ErrInvalid)
	}
	switch format {
	case model.FormatText, model.FormatMarkdown:
		return plainText(raw), nil
	case model.FormatPDF:
		return pdfText(raw)
	case model.FormatDocx:
		return docxText(raw)
	default:
		return "", fmt.Errorf("%w: unsupported format %q", apperrors.ErrInvalid, format)
	}
}

func plainText(raw []byte) string {
	text := string(bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF}))
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}

func pdfText(raw []byte) (text string, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: malformed pdf: %v", apperrors.ErrInvalid, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, content); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	text = strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: pdf contains no extractable text", apperrors.ErrInvalid)
	}
	return text, nil
}

// docxText pulls paragraph runs out of word/document.xml. DOCX is a zip of
// WordprocessingML; <w:t> elements hold the text, <w:p> ends a paragraph.
func docxText(raw []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var docXML io.ReadCloser
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("open docx document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("%w: docx has no word/document.xml", apperrors.ErrInvalid)
	}
	defer docXML.Close()

	decoder := xml.NewDecoder(docXML)
	var sb strings.Builder
	var inText bool
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx xml: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: docx contains no text", apperrors.ErrInvalid)
	}
	return text, nil
}
