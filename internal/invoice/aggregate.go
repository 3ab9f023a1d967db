package invoice

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// DefaultVATRate is the UK VAT rate assumed when totals must be estimated from line items
const DefaultVATRate = 0.20

// ErrNoPages is returned by Aggregate when there is nothing to aggregate
var ErrNoPages = errors.New("no page results to aggregate")

var (
	// rounding tolerance of two minor units
	totalTolerance = decimal.NewFromFloat(0.02)

	// mismatches above this also lower the confidence
	mismatchPenaltyThreshold = decimal.NewFromInt(1)
)

const (
	mismatchConfidenceDrop  = 0.1
	mismatchConfidenceFloor = 0.5
)

// Aggregator merges per-page extraction results into a single invoice
type Aggregator struct {
	classifier Classifier
	vatRate    decimal.Decimal
}

// NewAggregator creates an Aggregator with the default classifier and a 20% VAT fallback
func NewAggregator() *Aggregator {
	return NewAggregatorWithDeps(DefaultClassifier, DefaultVATRate)
}

// NewAggregatorWithDeps creates an Aggregator with a custom classifier and fallback VAT rate
func NewAggregatorWithDeps(classifier Classifier, vatRate float64) *Aggregator {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &Aggregator{
		classifier: classifier,
		vatRate:    decimal.NewFromFloat(vatRate),
	}
}

// Aggregate reconciles the page results of one document into an AggregatedInvoice.
// Only an empty input is an error; every other anomaly is reported as a warning.
func (a *Aggregator) Aggregate(pages []PageResult) (*AggregatedInvoice, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	pages = a.classifyMissing(pages)

	if len(pages) == 1 {
		page := pages[0]
		return &AggregatedInvoice{
			Invoice: page.Data,
			Metadata: Metadata{
				TotalPages:        1,
				PagesProcessed:    1,
				AverageConfidence: page.Data.Confidence,
				ProcessingTimeMs:  page.ProcessingTime,
				PageTypes:         []PageType{page.PageType},
				Warnings:          []string{},
			},
		}, nil
	}

	sorted := slices.Clone(pages)
	slices.SortStableFunc(sorted, func(x, y PageResult) int {
		return x.PageNumber - y.PageNumber
	})

	pageTypes := make([]PageType, 0, len(sorted))
	for _, page := range sorted {
		pageTypes = append(pageTypes, page.PageType)
	}

	firstPage := findPage(sorted, PageFirst, sorted[0])
	lastPage := findPage(sorted, PageLast, sorted[len(sorted)-1])

	warnings := []string{}

	merged := InvoiceData{
		Supplier:      firstPage.Data.Supplier,
		InvoiceNumber: firstPage.Data.InvoiceNumber,
		Date:          firstPage.Data.Date,
		DueDate:       firstPage.Data.DueDate,
		Currency:      firstPage.Data.Currency,
		LineItems:     []LineItem{},
	}

	for _, page := range sorted {
		merged.LineItems = MergeLineItems(merged.LineItems, page.Data.LineItems)
	}

	if lastPage.Data.TotalAmount > 0 {
		merged.Subtotal = lastPage.Data.Subtotal
		merged.TaxAmount = lastPage.Data.TaxAmount
		merged.TotalAmount = lastPage.Data.TotalAmount
	} else {
		subtotal := decimal.Zero
		for _, item := range merged.LineItems {
			subtotal = subtotal.Add(decimal.NewFromFloat(item.TotalPrice))
		}
		subtotal = subtotal.Round(2)
		merged.Subtotal = subtotal.InexactFloat64()

		if subtotal.IsPositive() {
			tax := subtotal.Mul(a.vatRate).Round(2)
			merged.TaxAmount = tax.InexactFloat64()
			merged.TotalAmount = subtotal.Add(tax).InexactFloat64()
			warnings = append(warnings, fmt.Sprintf(
				"No totals found on the last page; totals estimated from line items assuming %s%% VAT",
				a.vatRate.Shift(2).String(),
			))
		}
	}

	merged.Confidence = weightedConfidence(sorted)

	calculatedTotal := decimal.NewFromFloat(merged.Subtotal).Add(decimal.NewFromFloat(merged.TaxAmount))
	difference := calculatedTotal.Sub(decimal.NewFromFloat(merged.TotalAmount)).Abs()
	if difference.GreaterThan(totalTolerance) {
		warnings = append(warnings, fmt.Sprintf(
			"Total mismatch: subtotal + tax = %s but invoice total = %s",
			calculatedTotal.StringFixed(2),
			decimal.NewFromFloat(merged.TotalAmount).StringFixed(2),
		))
		if difference.GreaterThan(mismatchPenaltyThreshold) {
			merged.Confidence = max(mismatchConfidenceFloor, merged.Confidence-mismatchConfidenceDrop)
		}
	}

	if len(merged.LineItems) < len(sorted) {
		warnings = append(warnings, fmt.Sprintf(
			"Only %d line items extracted from %d pages; some pages may not have been read correctly",
			len(merged.LineItems), len(sorted),
		))
	}

	if !merged.HasSupplier() {
		warnings = append(warnings, "Supplier name could not be determined from the first page")
	}
	if !merged.HasInvoiceNumber() {
		warnings = append(warnings, "Invoice number could not be determined from the first page")
	}

	var processingTime int64
	for _, page := range sorted {
		processingTime += page.ProcessingTime
	}

	return &AggregatedInvoice{
		Invoice: merged,
		Metadata: Metadata{
			TotalPages:        len(sorted),
			PagesProcessed:    len(sorted),
			AverageConfidence: merged.Confidence,
			ProcessingTimeMs:  processingTime,
			PageTypes:         pageTypes,
			Warnings:          warnings,
		},
	}, nil
}

// Classify assigns a page role using the aggregator's classifier
func (a *Aggregator) Classify(data InvoiceData, pageNumber, totalPages int) PageType {
	return a.classifier.Classify(data, pageNumber, totalPages)
}

// classifyMissing returns a copy of pages with every empty PageType filled in
func (a *Aggregator) classifyMissing(pages []PageResult) []PageResult {
	out := slices.Clone(pages)
	for i := range out {
		if out[i].PageType == "" {
			out[i].PageType = a.classifier.Classify(out[i].Data, out[i].PageNumber, len(out))
		}
	}
	return out
}

func findPage(pages []PageResult, pageType PageType, fallback PageResult) PageResult {
	for _, page := range pages {
		if page.PageType == pageType {
			return page
		}
	}
	return fallback
}

// weightedConfidence averages page confidence weighted by line item count (minimum weight 1)
func weightedConfidence(pages []PageResult) float64 {
	var sum, weights float64
	for _, page := range pages {
		weight := float64(max(len(page.Data.LineItems), 1))
		sum += page.Data.Confidence * weight
		weights += weight
	}
	return sum / weights
}
