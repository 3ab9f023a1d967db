package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-pages/internal/invoice"
)

// defaultConfidence is used when the model does not report one
const defaultConfidence = 0.5

// amount accepts JSON numbers as well as strings such as "£1,234.50"
type amount float64

func (a *amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("parsing amount %s: %w", string(data), err)
		}
		*a = amount(f)
		return nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return fmt.Errorf("parsing amount %q: %w", s, err)
	}
	*a = amount(f)
	return nil
}

type rawLineItem struct {
	Description string `json:"description"`
	Quantity    amount `json:"quantity"`
	UnitPrice   amount `json:"unitPrice"`
	TotalPrice  amount `json:"totalPrice"`
	Category    string `json:"category"`
}

type rawPage struct {
	Supplier      string        `json:"supplier"`
	InvoiceNumber string        `json:"invoiceNumber"`
	Date          string        `json:"date"`
	DueDate       string        `json:"dueDate"`
	Currency      string        `json:"currency"`
	LineItems     []rawLineItem `json:"lineItems"`
	Subtotal      amount        `json:"subtotal"`
	TaxAmount     amount        `json:"taxAmount"`
	TotalAmount   amount        `json:"totalAmount"`
	Confidence    *float64      `json:"confidence"`
}

// parsePageJSON parses the JSON response of a vision model for one page
func parsePageJSON(text string) (*invoice.InvoiceData, error) {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var raw rawPage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data := &invoice.InvoiceData{
		Supplier:      strings.TrimSpace(raw.Supplier),
		InvoiceNumber: strings.TrimSpace(raw.InvoiceNumber),
		Date:          normalizeDate(raw.Date),
		DueDate:       normalizeDate(raw.DueDate),
		Currency:      strings.ToUpper(strings.TrimSpace(raw.Currency)),
		LineItems:     make([]invoice.LineItem, 0, len(raw.LineItems)),
		Subtotal:      money(raw.Subtotal),
		TaxAmount:     money(raw.TaxAmount),
		TotalAmount:   money(raw.TotalAmount),
		Confidence:    defaultConfidence,
	}

	if raw.Confidence != nil {
		data.Confidence = min(max(*raw.Confidence, 0), 1)
	}

	for _, li := range raw.LineItems {
		description := strings.TrimSpace(li.Description)
		if description == "" && li.TotalPrice == 0 {
			continue
		}

		item := invoice.LineItem{
			Description: description,
			Quantity:    float64(li.Quantity),
			UnitPrice:   money(li.UnitPrice),
			TotalPrice:  money(li.TotalPrice),
			Category:    strings.TrimSpace(li.Category),
		}
		if item.TotalPrice == 0 && item.Quantity != 0 && item.UnitPrice != 0 {
			item.TotalPrice = decimal.NewFromFloat(float64(li.Quantity)).
				Mul(decimal.NewFromFloat(float64(li.UnitPrice))).
				Round(2).
				InexactFloat64()
		}
		if item.Category == "" {
			item.Category = "General"
		}
		data.LineItems = append(data.LineItems, item)
	}

	return data, nil
}

// money rounds an extracted amount to minor units
func money(a amount) float64 {
	return decimal.NewFromFloat(float64(a)).Round(2).InexactFloat64()
}

// normalizeDate rewrites recognised date layouts as YYYY-MM-DD and keeps anything else as extracted
func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"02/01/2006",
		"02-01-2006",
		"2 January 2006",
		"2 Jan 2006",
		"January 2, 2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, value); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return value
}
