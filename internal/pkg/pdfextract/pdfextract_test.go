package pdfextract

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal document with the given number of blank pages.
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", i+3))
	}
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPageCount(t *testing.T) {
	doc, err := Open(buildPDF(3))
	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount())
}

func TestOpenRejectsGarbage(t *testing.T) {
	_, err := Open([]byte("definitely not a pdf"))
	assert.Error(t, err)

	_, err = Open(nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestExtractTextEmptyInput(t *testing.T) {
	text, err := ExtractText(bytes.NewReader(nil), 10)
	require.NoError(t, err)
	assert.Empty(t, text)
}
