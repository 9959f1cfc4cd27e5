package extractor

import (
	"fmt"
	"regexp"
)

// ValidationError reports a malformed extraction payload. The pipeline must
// not persist anything when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("extraction validation: %s: %s", e.Field, e.Message)
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Validate enforces the extraction result schema: required identifiers,
// YYYY-MM-DD dates, numeric money fields and a confidence in [0,100].
func Validate(r Result) error {
	if r.AccountNumber == "" {
		return &ValidationError{Field: "accountNumber", Message: "required"}
	}
	if r.InvoiceNumber == "" {
		return &ValidationError{Field: "invoiceNumber", Message: "required"}
	}

	dates := []struct {
		field    string
		value    string
		required bool
	}{
		{"billingPeriodStart", r.BillingPeriodStart, true},
		{"billingPeriodEnd", r.BillingPeriodEnd, true},
		{"billDate", r.BillDate, true},
		{"dueDate", r.DueDate, false},
	}
	for _, d := range dates {
		if d.value == "" {
			if d.required {
				return &ValidationError{Field: d.field, Message: "required"}
			}
			continue
		}
		if !dateRe.MatchString(d.value) {
			return &ValidationError{Field: d.field, Message: "must be in YYYY-MM-DD format"}
		}
	}

	money := []struct {
		field string
		value float64
	}{
		{"currentCharges", r.CurrentCharges},
		{"outstanding", r.Outstanding},
		{"totalDue", r.TotalDue},
		{"gstAmount", r.GSTAmount},
	}
	for _, m := range money {
		if m.value != m.value { // NaN
			return &ValidationError{Field: m.field, Message: "must be a number"}
		}
	}

	if r.Confidence < 0 || r.Confidence > 100 {
		return &ValidationError{Field: "confidence", Message: "must be between 0 and 100"}
	}

	if r.LineItems == nil {
		return &ValidationError{Field: "lineItems", Message: "required (may be empty)"}
	}
	for i, item := range r.LineItems {
		if item.ServiceNumber == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("lineItems[%d].serviceNumber", i),
				Message: "required",
			}
		}
		if item.SubscriptionCharge < 0 || item.UsageCharges < 0 || item.OtherCharges < 0 || item.TotalCharge < 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("lineItems[%d]", i),
				Message: "charges must not be negative",
			}
		}
	}

	return nil
}
