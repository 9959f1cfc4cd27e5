package pdftext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstMatchPrefersProviderFormat(t *testing.T) {
	header := "DHIRAAGU TAX INVOICE B1-123456 ACCOUNT NO: BA12345678"

	assert.Equal(t, "B1-123456", firstMatch(header, invoicePatterns, minInvoiceLength))
	assert.Equal(t, "BA12345678", firstMatch(header, accountPatterns, minAccountLength))
}

func TestFirstMatchFallsBackToLabelledGeneric(t *testing.T) {
	header := "INVOICE NO: XY-2024001234 SERVICE ACCOUNT NUMBER: CD12345678"

	assert.Equal(t, "XY-2024001234", firstMatch(header, invoicePatterns, minInvoiceLength))
	assert.Equal(t, "CD12345678", firstMatch(header, accountPatterns, minAccountLength))
}

func TestFirstMatchRejectsShortCandidates(t *testing.T) {
	// An unlabelled generic token never matches; short matches are dropped.
	assert.Empty(t, firstMatch("REF 12345", invoicePatterns, minInvoiceLength))
	assert.Empty(t, firstMatch("TOTAL DUE 450.00 MVR", accountPatterns, minAccountLength))
}

func TestExtractNumbersOnUnreadableContent(t *testing.T) {
	// Not a PDF at all: the prefilter stays silent and reports nothing.
	numbers := ExtractNumbers([]byte("this is not a pdf"))
	assert.Empty(t, numbers.InvoiceNumber)
	assert.Empty(t, numbers.AccountNumber)

	numbers = ExtractNumbers(nil)
	assert.Empty(t, numbers.InvoiceNumber)
	assert.Empty(t, numbers.AccountNumber)
}
