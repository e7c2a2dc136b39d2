package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractText sniffs the true file type from bytes before trusting the name
// or mime type, then extracts plain text. Supported: PDF, DOCX, PPTX,
// TXT/MD, HTML.
func ExtractText(originalName, mimeType string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	mt := strings.ToLower(strings.TrimSpace(mimeType))

	if len(data) == 0 {
		return "", fmt.Errorf("empty file: name=%s mime=%s", originalName, mimeType)
	}

	if isPDF(data) {
		return extractPDF(data)
	}
	if isZip(data) {
		kind, err := detectOpenXMLKind(data)
		if err != nil {
			return "", fmt.Errorf("zip/openxml detect failed: %w", err)
		}
		switch kind {
		case "docx":
			return extractDOCX(data)
		case "pptx":
			return extractPPTX(data)
		default:
			return "", fmt.Errorf("unsupported zip/openxml kind=%s name=%s", kind, originalName)
		}
	}

	if looksLikeHTML(data) || mt == "text/html" || ext == ".html" || ext == ".htm" {
		return extractHTML(string(data)), nil
	}

	if isProbablyText(data) || mt == "text/plain" || ext == ".txt" || ext == ".md" || ext == ".markdown" {
		return collapseWhitespace(string(data)), nil
	}

	// a claimed pdf without the %PDF header is corrupted, not parseable
	if mt == "application/pdf" || ext == ".pdf" {
		return "", fmt.Errorf("file claims pdf but missing %%PDF header: name=%s", originalName)
	}
	if ext == ".docx" || ext == ".pptx" {
		return "", fmt.Errorf("file claims %s but is not a valid zip container: name=%s", strings.TrimPrefix(ext, "."), originalName)
	}

	return "", fmt.Errorf("unsupported file type: name=%s ext=%s mime=%s", originalName, ext, mimeType)
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func looksLikeHTML(b []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(b[:min(len(b), 2048)])))
	if strings.HasPrefix(s, "<!doctype") || strings.HasPrefix(s, "<html") {
		return true
	}
	return strings.Contains(s, "<html") && strings.Contains(s, "</html>")
}

// isProbablyText accepts when the sample is NUL-free and mostly printable.
func isProbablyText(b []byte) bool {
	sample := b[:min(len(b), 4096)]
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return collapseWhitespace(string(b)), nil
}

func detectOpenXMLKind(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	hasWord := false
	hasPpt := false
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/") {
			hasWord = true
		}
		if strings.HasPrefix(f.Name, "ppt/") {
			hasPpt = true
		}
	}
	switch {
	case hasWord && !hasPpt:
		return "docx", nil
	case hasPpt && !hasWord:
		return "pptx", nil
	default:
		return "unknown", fmt.Errorf("zip does not look like docx or pptx")
	}
}

func extractDOCX(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		out.WriteString(xmlTextContent(b, "t"))
	}
	s := collapseWhitespace(out.String())
	if s == "" {
		return "", fmt.Errorf("no text extracted from docx")
	}
	return s, nil
}

func extractPPTX(zipBytes []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		out.WriteString(xmlTextContent(b, "t"))
		out.WriteByte('\n')
	}
	s := collapseWhitespace(out.String())
	if s == "" {
		return "", fmt.Errorf("no text extracted from pptx")
	}
	return s, nil
}

// xmlTextContent gathers the character data of every element whose local
// name matches tag.
func xmlTextContent(xmlBytes []byte, tag string) string {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != tag {
			continue
		}
		var v string
		_ = dec.DecodeElement(&v, &se)
		if v != "" {
			out.WriteString(v)
			out.WriteByte(' ')
		}
	}
	return out.String()
}

var htmlTagStripPattern = regexp.MustCompile(`(?s)<[^>]*>`)

func extractHTML(s string) string {
	s = htmlTagStripPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
