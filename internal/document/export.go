package document

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	invoiceSheet  = "Invoice"
	warningsSheet = "Review"
)

// exportWorkbook writes the aggregated invoice of a document to an XLSX workbook.
// The Invoice sheet holds the header, line items and totals; the Review sheet
// holds the validation verdict and page roles.
func exportWorkbook(doc *Document) ([]byte, error) {
	if doc.Result == nil {
		return nil, fmt.Errorf("document %s has no aggregated invoice", doc.ID)
	}
	inv := doc.Result.Invoice
	meta := doc.Result.Metadata

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return nil, fmt.Errorf("renaming sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating style: %w", err)
	}

	rows := [][]interface{}{
		{"Supplier", inv.DisplaySupplier()},
		{"Invoice Number", inv.DisplayInvoiceNumber()},
		{"Date", inv.Date},
		{"Due Date", inv.DueDate},
		{"Currency", inv.Currency},
		{},
		{"Description", "Quantity", "Unit Price", "Total Price", "Category"},
	}
	itemHeaderRow := len(rows)
	for _, item := range inv.LineItems {
		rows = append(rows, []interface{}{item.Description, item.Quantity, item.UnitPrice, item.TotalPrice, item.Category})
	}
	rows = append(rows, []interface{}{})
	totalsRow := len(rows) + 1
	rows = append(rows,
		[]interface{}{"Subtotal", inv.Subtotal},
		[]interface{}{"Tax", inv.TaxAmount},
		[]interface{}{"Total", inv.TotalAmount},
		[]interface{}{"Confidence", inv.Confidence},
	)

	if err := writeRows(f, invoiceSheet, rows); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(invoiceSheet, "A1", "A5", bold); err != nil {
		return nil, fmt.Errorf("styling labels: %w", err)
	}
	if err := f.SetCellStyle(invoiceSheet, fmt.Sprintf("A%d", totalsRow), fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return nil, fmt.Errorf("styling totals: %w", err)
	}
	if err := f.SetCellStyle(invoiceSheet, fmt.Sprintf("A%d", itemHeaderRow), fmt.Sprintf("E%d", itemHeaderRow), bold); err != nil {
		return nil, fmt.Errorf("styling item header: %w", err)
	}
	if err := f.SetColWidth(invoiceSheet, "A", "A", 40); err != nil {
		return nil, fmt.Errorf("sizing columns: %w", err)
	}

	if _, err := f.NewSheet(warningsSheet); err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}

	review := [][]interface{}{
		{"Valid", doc.Validation.IsValid},
		{"Pages", meta.TotalPages},
		{"Failed Pages", len(doc.FailedPages)},
		{},
		{"Page", "Type"},
	}
	for i, pageType := range meta.PageTypes {
		pageNumber := i + 1
		if i < len(doc.Pages) {
			pageNumber = doc.Pages[i].PageNumber
		}
		review = append(review, []interface{}{pageNumber, string(pageType)})
	}
	review = append(review, []interface{}{})
	for _, msg := range doc.Validation.Errors {
		review = append(review, []interface{}{"Error", msg})
	}
	for _, msg := range doc.Validation.Warnings {
		review = append(review, []interface{}{"Warning", msg})
	}

	if err := writeRows(f, warningsSheet, review); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("locating row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
