package scanning

// pageScanPrompt is the shared prompt used by all LLM providers for scanning one invoice page
const pageScanPrompt = `You are analyzing ONE PAGE of an invoice. The invoice may span several pages, so this page may only contain part of it. Carefully read all text in the image and extract the following information:

1. **Supplier**: The vendor or seller issuing the invoice, usually in the header or letterhead. Use null if the page has no header.

2. **Invoice Number**: The invoice or document number. Use null if it is not printed on this page.

3. **Dates**: The invoice date and the payment due date, converted to ISO 8601 format (YYYY-MM-DD) when possible.

4. **Currency**: The three letter ISO currency code (e.g. "GBP", "EUR", "USD").

5. **Line Items**: Every billed line printed on THIS page, with description, quantity, unit price, line total and a short category (e.g. "Materials", "Labour", "Services").

6. **Totals**: The subtotal (net), tax/VAT amount and total amount due, ONLY if they are printed on this page. Use 0 when they are not.

7. **Confidence**: A number between 0 and 1 describing how legible the page was and how sure you are of the values.

Return ONLY valid JSON in this exact format:
{
  "supplier": "Business Name",
  "invoiceNumber": "INV-0001",
  "date": "YYYY-MM-DD",
  "dueDate": "YYYY-MM-DD",
  "currency": "GBP",
  "lineItems": [
    {"description": "Item", "quantity": 1, "unitPrice": 0.00, "totalPrice": 0.00, "category": "Services"}
  ],
  "subtotal": 0.00,
  "taxAmount": 0.00,
  "totalAmount": 0.00,
  "confidence": 0.0
}

Important:
- Amounts must be numbers (not strings) without currency symbols
- Do not invent line items or totals that are not on this page
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// systemPrompt primes chat based models before the page prompt
const systemPrompt = "You are an expert at reading and extracting information from invoices. You must carefully read all text in images and extract accurate information."
