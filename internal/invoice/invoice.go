package invoice

import "strings"

const (
	// UnknownSupplier is the placeholder extractors emit when no supplier was found
	UnknownSupplier = "Unknown Supplier"

	// NotAvailable is the placeholder extractors emit when no invoice number was found
	NotAvailable = "N/A"

	continuationMarker = "see page"
)

// PageType is the role a page plays within a multi-page invoice
type PageType string

const (
	PageFirst        PageType = "first"
	PageContinuation PageType = "continuation"
	PageLast         PageType = "last"
	PageSingle       PageType = "single"
)

// LineItem is a single billed line on an invoice
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	TotalPrice  float64 `json:"totalPrice"`
	Category    string  `json:"category"`
}

// InvoiceData contains the fields extracted from one page, or the merged record for a document.
// Empty header strings mean the field was not extracted.
type InvoiceData struct {
	Supplier      string     `json:"supplier"`
	InvoiceNumber string     `json:"invoiceNumber"`
	Date          string     `json:"date"`
	DueDate       string     `json:"dueDate"`
	Currency      string     `json:"currency"`
	LineItems     []LineItem `json:"lineItems"`
	Subtotal      float64    `json:"subtotal"`
	TaxAmount     float64    `json:"taxAmount"`
	TotalAmount   float64    `json:"totalAmount"`
	Confidence    float64    `json:"confidence"`
}

// HasSupplier reports whether a real supplier name was extracted
func (d InvoiceData) HasSupplier() bool {
	return !isPlaceholder(d.Supplier, UnknownSupplier)
}

// HasInvoiceNumber reports whether a real invoice number was extracted
func (d InvoiceData) HasInvoiceNumber() bool {
	return !isPlaceholder(d.InvoiceNumber, NotAvailable)
}

// DisplaySupplier returns the supplier for presentation, falling back to UnknownSupplier
func (d InvoiceData) DisplaySupplier() string {
	if strings.TrimSpace(d.Supplier) == "" {
		return UnknownSupplier
	}
	return d.Supplier
}

// DisplayInvoiceNumber returns the invoice number for presentation, falling back to NotAvailable
func (d InvoiceData) DisplayInvoiceNumber() string {
	if strings.TrimSpace(d.InvoiceNumber) == "" {
		return NotAvailable
	}
	return d.InvoiceNumber
}

// isPlaceholder treats blanks, the given sentinel and "see page N" references as not extracted
func isPlaceholder(value, sentinel string) bool {
	if strings.TrimSpace(value) == "" || value == sentinel {
		return true
	}
	return strings.Contains(strings.ToLower(value), continuationMarker)
}

// PageResult is the extraction result for one physical page
type PageResult struct {
	PageNumber     int         `json:"pageNumber"` // 1-indexed
	Data           InvoiceData `json:"data"`
	PageType       PageType    `json:"pageType"`
	ImageURL       string      `json:"imageUrl"`
	ProcessingTime int64       `json:"processingTime"` // milliseconds
	Error          string      `json:"error,omitempty"`
}

// Metadata describes how an aggregated invoice was assembled
type Metadata struct {
	TotalPages        int        `json:"totalPages"`
	PagesProcessed    int        `json:"pagesProcessed"`
	AverageConfidence float64    `json:"averageConfidence"`
	ProcessingTimeMs  int64      `json:"processingTimeMs"`
	PageTypes         []PageType `json:"pageTypes"`
	Warnings          []string   `json:"warnings"`
}

// AggregatedInvoice is the merged record for a whole document
type AggregatedInvoice struct {
	Invoice  InvoiceData `json:"invoice"`
	Metadata Metadata    `json:"metadata"`
}

// ValidationResult is the verdict returned by Validate
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
