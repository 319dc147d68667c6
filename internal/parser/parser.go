package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyText is returned when a document yields no extractable text.
	ErrEmptyText = errors.New("no text could be extracted from the document")
	// ErrUnreadablePDF is returned when the bytes cannot be opened as a PDF at all.
	ErrUnreadablePDF = errors.New("unreadable pdf")
)

const pdfExt = ".pdf"

// IsPDFName reports whether filename carries a .pdf suffix. Content is not sniffed.
func IsPDFName(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == pdfExt
}

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// PDFExtractor extracts text with ledongthuc/pdf.
type PDFExtractor struct{}

func (PDFExtractor) Extract(content []byte) (string, error) {
	return ExtractPDFText(content)
}

// ExtractPDFText concatenates the plain text of every page, one newline between pages.
// Pages that fail to decode are skipped.
func ExtractPDFText(content []byte) (string, error) {
	reader, numPages, err := openPDF(content)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		txt, err := pageText(reader, i)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Skipping page, text extraction failed")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(txt)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	return text, nil
}

// the pdf library panics on some malformed inputs
func openPDF(content []byte) (reader *pdf.Reader, numPages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, numPages = nil, 0
			err = fmt.Errorf("%w: %v", ErrUnreadablePDF, r)
		}
	}()

	reader, err = pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	return reader, reader.NumPage(), nil
}

func pageText(reader *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("page %d: %v", num, r)
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing page object", num)
	}
	return page.GetPlainText(nil)
}
