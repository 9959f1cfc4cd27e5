// Package pdftext extracts invoice and account numbers from embedded PDF
// text. It is the cheapest strategy in the scan fallback chain: no external
// calls, first page only, silent on failure.
package pdftext

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	headerLimit      = 3000
	minInvoiceLength = 6
	minAccountLength = 8
)

// Numbers holds whatever the prefilter could find. Empty fields mean the
// caller should escalate to the next strategy.
type Numbers struct {
	InvoiceNumber string
	AccountNumber string
}

// Ordered most-specific first: the provider format, then labelled generics.
var invoicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(B\d+-\d{6,12})\b`),
	regexp.MustCompile(`\b(?:INVOICE|BILL)\s*(?:NO|NUMBER|#)?[:\s]*(B\d+-?\d{6,12})\b`),
	regexp.MustCompile(`\b(?:INVOICE|BILL)\s*(?:NO|NUMBER|#)?[:\s]*([A-Z]{1,3}-?\d{6,12})\b`),
}

var accountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(BA\d{8,12})\b`),
	regexp.MustCompile(`\b(?:ACCOUNT|SERVICE\s*ACCOUNT)\s*(?:NO|NUMBER|#)?[:\s]*(BA\d{8,12})\b`),
	regexp.MustCompile(`\b(?:ACCOUNT|SERVICE\s*ACCOUNT)\s*(?:NO|NUMBER|#)?[:\s]*([A-Z]{2}\d{8,12})\b`),
}

var nonWord = regexp.MustCompile(`[^A-Z0-9-]`)

// ExtractNumbers scans the first page of the document for invoice and
// account numbers. It never returns an error for unreadable content; absent
// fields are the signal.
func ExtractNumbers(raw []byte) Numbers {
	text, err := firstPageText(raw)
	if err != nil || text == "" {
		return Numbers{}
	}

	if len(text) > headerLimit {
		text = text[:headerLimit]
	}
	header := strings.ToUpper(text)

	return Numbers{
		InvoiceNumber: firstMatch(header, invoicePatterns, minInvoiceLength),
		AccountNumber: firstMatch(header, accountPatterns, minAccountLength),
	}
}

func firstMatch(text string, patterns []*regexp.Regexp, minLen int) string {
	for _, pattern := range patterns {
		m := pattern.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		candidate := nonWord.ReplaceAllString(strings.TrimSpace(m[1]), "")
		if len(candidate) >= minLen {
			return candidate
		}
	}
	return ""
}

func firstPageText(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}
	if reader.NumPage() == 0 {
		return "", nil
	}

	page := reader.Page(1)
	if page.V.IsNull() {
		return "", nil
	}

	rows, err := page.GetTextByRow()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, row := range rows {
		for _, word := range row.Content {
			sb.WriteString(word.S)
			sb.WriteString(" ")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
