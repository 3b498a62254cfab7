package reconcile

import "strings"

const systemPrompt = "You read OCR output of invoices, often in Hebrew mixed with English. " +
	"Reply with a single JSON object and nothing else."

// BuildPrompt embeds raw document text in the extraction instructions.
func BuildPrompt(raw string) string {
	var sb strings.Builder
	sb.WriteString("Analyze this OCR invoice text and extract:\n")
	sb.WriteString("- Invoice Number\n- Date\n- Vendor\n- Amount before VAT\n- Total\n- Line Items\n\n")
	sb.WriteString("Return only a JSON object with the keys invoiceNumber, date, vendor, beforeVat, total ")
	sb.WriteString("(strings, or null when absent) and lineItems (an array of strings, one per item row). ")
	sb.WriteString("Copy values as they appear in the text.\n\n")
	sb.WriteString("Text:\n\"\"\"")
	sb.WriteString(raw)
	sb.WriteString("\"\"\"\n")
	return sb.String()
}
