package extractor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validResult() Result {
	return Result{
		AccountNumber:      "BA12345678",
		InvoiceNumber:      "B1-000100",
		BillingPeriodStart: "2025-03-01",
		BillingPeriodEnd:   "2025-03-31",
		BillDate:           "2025-04-01",
		DueDate:            "2025-04-20",
		CurrentCharges:     300,
		TotalDue:           300,
		Confidence:         90,
		LineItems: []LineItemResult{
			{ServiceNumber: "7771001", TotalCharge: 300},
		},
	}
}

func TestValidateAcceptsCompleteResult(t *testing.T) {
	assert.NoError(t, Validate(validResult()))

	// Line items may be present but empty.
	r := validResult()
	r.LineItems = []LineItemResult{}
	assert.NoError(t, Validate(r))

	// Due date is optional.
	r = validResult()
	r.DueDate = ""
	assert.NoError(t, Validate(r))
}

func TestValidateRejectsBadResults(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Result)
		field  string
	}{
		{"missing account number", func(r *Result) { r.AccountNumber = "" }, "accountNumber"},
		{"missing invoice number", func(r *Result) { r.InvoiceNumber = "" }, "invoiceNumber"},
		{"missing period start", func(r *Result) { r.BillingPeriodStart = "" }, "billingPeriodStart"},
		{"malformed bill date", func(r *Result) { r.BillDate = "01/04/2025" }, "billDate"},
		{"malformed due date", func(r *Result) { r.DueDate = "April 20" }, "dueDate"},
		{"nan total due", func(r *Result) { r.TotalDue = math.NaN() }, "totalDue"},
		{"confidence above range", func(r *Result) { r.Confidence = 101 }, "confidence"},
		{"confidence below range", func(r *Result) { r.Confidence = -1 }, "confidence"},
		{"nil line items", func(r *Result) { r.LineItems = nil }, "lineItems"},
		{"line item without number", func(r *Result) { r.LineItems[0].ServiceNumber = "" }, "lineItems[0].serviceNumber"},
		{"negative line item charge", func(r *Result) { r.LineItems[0].UsageCharges = -5 }, "lineItems[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validResult()
			tc.mutate(&r)

			err := Validate(r)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}
