package document

import (
	"time"

	"github.com/zombor/invoice-pages/internal/invoice"
)

// Document is one uploaded invoice: its pages, the aggregated record and its validation verdict
type Document struct {
	ID          string                     `json:"id"`
	Filenames   []string                   `json:"filenames"`
	PageCount   int                        `json:"page_count"`             // physical pages, including failed ones
	Pages       []invoice.PageResult       `json:"pages"`                  // pages that were extracted and aggregated
	FailedPages []invoice.PageResult       `json:"failed_pages,omitempty"` // pages the scanner could not read
	Result      *invoice.AggregatedInvoice `json:"result"`
	Validation  invoice.ValidationResult   `json:"validation"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// Page returns the page with the given 1-indexed number, whether or not it was extracted
func (d *Document) Page(number int) (invoice.PageResult, bool) {
	for _, pages := range [][]invoice.PageResult{d.Pages, d.FailedPages} {
		for _, page := range pages {
			if page.PageNumber == number {
				return page, true
			}
		}
	}
	return invoice.PageResult{}, false
}

// Upload is one file received from a client
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}
