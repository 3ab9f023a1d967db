package invoice

import "fmt"

const (
	minConfidence     = 0.50
	reviewConfidence  = 0.70
	longDocumentPages = 10
)

// Validate checks an aggregated invoice for completeness and quality.
// Aggregation warnings are carried into the result; errors make the invoice invalid.
func Validate(aggregated *AggregatedInvoice) ValidationResult {
	result := ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if aggregated == nil {
		result.Errors = append(result.Errors, "No aggregated invoice to validate")
		return result
	}

	result.Warnings = append(result.Warnings, aggregated.Metadata.Warnings...)

	inv := aggregated.Invoice

	if inv.Supplier == "" || inv.Supplier == UnknownSupplier {
		result.Errors = append(result.Errors, "Supplier name is missing")
	}
	if len(inv.LineItems) == 0 {
		result.Errors = append(result.Errors, "No line items found")
	}
	if inv.TotalAmount <= 0 {
		result.Errors = append(result.Errors, "Total amount must be greater than zero")
	}
	if inv.Confidence < minConfidence {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"Very low confidence (%.0f%%): extracted data may be unreliable", inv.Confidence*100))
	}

	// Below minConfidence this fires as well as the error above.
	if inv.Confidence < reviewConfidence {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Low confidence (%.0f%%): manual review recommended", inv.Confidence*100))
	}
	if aggregated.Metadata.TotalPages > longDocumentPages {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Document has %d pages; processing may take longer than usual", aggregated.Metadata.TotalPages))
	}

	result.IsValid = len(result.Errors) == 0
	return result
}
