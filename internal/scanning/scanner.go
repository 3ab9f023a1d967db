package scanning

import (
	"context"

	"github.com/zombor/invoice-pages/internal/invoice"
)

// Scanner defines the interface for extracting invoice data from one page image
type Scanner interface {
	// ScanPage analyzes a single page image and extracts the invoice fields visible on it
	ScanPage(ctx context.Context, imageData []byte, contentType string) (*invoice.InvoiceData, error)
	// Close closes the scanner and releases resources
	Close() error
}
