package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/parser/parsertest"
)

func TestIsPDFName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"report.pdf", true},
		{"REPORT.PDF", true},
		{"archive.tar.pdf", true},
		{"notes.txt", false},
		{"pdf", false},
		{"report.pdf.exe", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPDFName(tt.name))
		})
	}
}

func TestExtractPDFText(t *testing.T) {
	content := parsertest.PDF(
		[]string{"Hello from page one"},
		[]string{"Second page text"},
	)

	text, err := ExtractPDFText(content)
	require.NoError(t, err)

	assert.Contains(t, text, "Hello from page one")
	assert.Contains(t, text, "Second page text")
	assert.Less(t, strings.Index(text, "Hello"), strings.Index(text, "Second"), "pages keep source order")
}

func TestExtractPDFTextSkipsBrokenPage(t *testing.T) {
	content := parsertest.WithContents(
		"BT /F1 12 Tf 72 720 Td (First page survives) Tj ET",
		parsertest.MalformedContent,
		"BT /F1 12 Tf 72 720 Td (Third page survives) Tj ET",
	)

	text, err := ExtractPDFText(content)
	require.NoError(t, err)

	assert.Contains(t, text, "First page survives")
	assert.Contains(t, text, "Third page survives")
	assert.Less(t, strings.Index(text, "First"), strings.Index(text, "Third"))
	assert.Equal(t, 1, strings.Count(text, "\n"), "the broken page adds no separator")
}

func TestExtractPDFTextAllPagesBroken(t *testing.T) {
	content := parsertest.WithContents(parsertest.MalformedContent, parsertest.MalformedContent)

	_, err := ExtractPDFText(content)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestExtractPDFTextEmpty(t *testing.T) {
	content := parsertest.PDF([]string{}, []string{"   "})

	_, err := ExtractPDFText(content)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestExtractPDFTextGarbage(t *testing.T) {
	_, err := ExtractPDFText([]byte("%PDF-1.4\nthis is not really a pdf"))
	assert.ErrorIs(t, err, ErrUnreadablePDF)

	_, err = ExtractPDFText(nil)
	assert.ErrorIs(t, err, ErrUnreadablePDF)
}
