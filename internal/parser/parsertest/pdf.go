// Package parsertest builds small, valid PDF files for tests.
package parsertest

import (
	"bytes"
	"fmt"
	"strings"
)

// MalformedContent is a page content stream whose hex string cannot be decoded.
const MalformedContent = "BT /F1 12 Tf 72 720 Td <zz> Tj ET"

// PDF returns a PDF with one page per entry of pages; each page shows its
// lines in Helvetica. An empty line slice produces a page without text.
func PDF(pages ...[]string) []byte {
	streams := make([]string, len(pages))
	for i, lines := range pages {
		streams[i] = contentStream(lines)
	}
	return WithContents(streams...)
}

// WithContents returns a PDF with one page per raw content stream.
func WithContents(pages ...string) []byte {
	var objects []string

	// 1 catalog, 2 page tree, 3 font, then a page/content pair per page
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)

	for i, content := range pages {
		contentID := 5 + 2*i
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentID),
			stream(content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func contentStream(lines []string) string {
	if len(lines) == 0 {
		return "q Q"
	}
	var sb strings.Builder
	sb.WriteString("BT /F1 12 Tf 14 TL 72 720 Td")
	for i, line := range lines {
		if i > 0 {
			sb.WriteString(" T*")
		}
		fmt.Fprintf(&sb, " (%s) Tj", escape(line))
	}
	sb.WriteString(" ET")
	return sb.String()
}

func stream(data string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(data), data)
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
