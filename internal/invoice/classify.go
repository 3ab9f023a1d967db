package invoice

// Classifier assigns a PageType to a single page.
// Implementations must be pure so the Aggregator can call them in any order.
type Classifier interface {
	Classify(data InvoiceData, pageNumber, totalPages int) PageType
}

// ClassifierFunc adapts a plain function to the Classifier interface
type ClassifierFunc func(data InvoiceData, pageNumber, totalPages int) PageType

// Classify calls f
func (f ClassifierFunc) Classify(data InvoiceData, pageNumber, totalPages int) PageType {
	return f(data, pageNumber, totalPages)
}

// DefaultClassifier is the heuristic classifier backed by Classify
var DefaultClassifier Classifier = ClassifierFunc(Classify)

// Classify decides the role of a page from its extracted data and position
func Classify(data InvoiceData, pageNumber, totalPages int) PageType {
	if totalPages == 1 {
		return PageSingle
	}
	if pageNumber == 1 {
		return PageFirst
	}

	hasFinancialTotals := data.TotalAmount > 0 && data.Subtotal > 0
	if pageNumber == totalPages && hasFinancialTotals {
		return PageLast
	}

	if hasContinuationMarker(data) {
		return PageContinuation
	}

	// Neither a marked continuation nor a last page with totals.
	return PageContinuation
}

// hasContinuationMarker reports whether the header fields point elsewhere or were not extracted
func hasContinuationMarker(data InvoiceData) bool {
	return !data.HasSupplier() || !data.HasInvoiceNumber()
}
