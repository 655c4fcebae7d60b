package ap2

import "strings"

const promptRule = "========================================"

// RenderConsentPrompt formats the text shown to the user before they approve
// or reject a mandate. Output depends only on the record's display fields.
func RenderConsentPrompt(p PendingAuthorization) string {
	var b strings.Builder
	b.WriteString(promptRule + "\n")
	b.WriteString("        AP2 PAYMENT AUTHORIZATION\n")
	b.WriteString(promptRule + "\n")
	b.WriteString("Merchant: " + p.MerchantDisplayName + "\n")
	b.WriteString("Amount: " + p.AmountDisplay + "\n")
	b.WriteString("\n")
	b.WriteString("Items:\n")
	for _, item := range p.LineItemDisplay {
		b.WriteString("  - " + item + "\n")
	}
	b.WriteString("\n")
	b.WriteString("Description: " + p.Description + "\n")
	b.WriteString(promptRule + "\n")
	b.WriteString("\n")
	b.WriteString("To authorize this payment, the user should confirm.\n")
	b.WriteString("Use confirm_payment with mandate_id " + p.MandateID + ".\n")
	return b.String()
}
