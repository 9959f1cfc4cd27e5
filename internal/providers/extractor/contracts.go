// Package extractor wraps the external vision model that turns bill page
// images into structured extraction results.
package extractor

import "context"

// QuickResult is the cheap first-page scan used for duplicate detection.
type QuickResult struct {
	InvoiceNumber string `json:"invoiceNumber"`
	AccountNumber string `json:"accountNumber"`
	Confidence    int    `json:"confidence"`
}

// LineItemResult is one billed service as reported by the extractor.
type LineItemResult struct {
	ServiceNumber      string  `json:"serviceNumber"`
	PackageName        string  `json:"packageName"`
	SubscriptionCharge float64 `json:"subscriptionCharge"`
	UsageCharges       float64 `json:"usageCharges"`
	OtherCharges       float64 `json:"otherCharges"`
	TotalCharge        float64 `json:"totalCharge"`
}

// Result is the full extraction payload for one bill.
type Result struct {
	AccountNumber      string           `json:"accountNumber"`
	InvoiceNumber      string           `json:"invoiceNumber"`
	BillingPeriodStart string           `json:"billingPeriodStart"`
	BillingPeriodEnd   string           `json:"billingPeriodEnd"`
	BillDate           string           `json:"billDate"`
	DueDate            string           `json:"dueDate,omitempty"`
	CurrentCharges     float64          `json:"currentCharges"`
	Outstanding        float64          `json:"outstanding"`
	TotalDue           float64          `json:"totalDue"`
	GSTAmount          float64          `json:"gstAmount"`
	LineItems          []LineItemResult `json:"lineItems"`
	Confidence         int              `json:"confidence"`
}

// Image is one rendered bill page.
type Image struct {
	MediaType string
	Data      []byte
}

// Extractor is the vision-model boundary. Calls are single-shot: a failure
// propagates to the caller, no retries happen here.
type Extractor interface {
	QuickExtract(ctx context.Context, image Image) (QuickResult, error)
	FullExtract(ctx context.Context, images []Image) (Result, error)
}
