package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("empty pdf document")

// Document is a parsed PDF held in memory.
type Document struct {
	reader *pdf.Reader
}

func Open(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf failed: %w", err)
	}
	return &Document{reader: reader}, nil
}

func (d *Document) PageCount() int {
	return d.reader.NumPage()
}

// Text returns the plain text of the document, cut at maxChars runes when
// maxChars is positive. Returns "" and nil if there is no extractable text.
func (d *Document) Text(maxChars int) (string, error) {
	plain, err := d.reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text failed: %w", err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text failed: %w", err)
	}
	text := []rune(string(bytes.TrimSpace(out)))
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return string(text), nil
}

// ExtractText reads the entire content of r and extracts plain text from the PDF.
func ExtractText(r io.Reader, maxChars int) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", nil
	}
	doc, err := Open(b)
	if err != nil {
		return "", err
	}
	return doc.Text(maxChars)
}
