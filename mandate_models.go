package ap2

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency applies when a line item or mandate omits its currency.
const DefaultCurrency = "USD"

// MandateStatus is the lifecycle stage of a [PaymentMandate].
type MandateStatus string

// Defines values for MandateStatus.
const (
	MandateStatusPending    MandateStatus = "pending"
	MandateStatusAuthorized MandateStatus = "authorized"
	MandateStatusProcessing MandateStatus = "processing"
	MandateStatusCompleted  MandateStatus = "completed"
	MandateStatusFailed     MandateStatus = "failed"
	MandateStatusCancelled  MandateStatus = "cancelled"
)

// LineItem is one priced entry of a mandate. Values are copied everywhere
// they travel, so a LineItem never changes after construction.
type LineItem struct {
	Description string          `json:"description" validate:"required"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"nonneg"`
	Currency    string          `json:"currency" validate:"required,iso4217"`
}

// NewLineItem validates and builds a [LineItem]. A zero quantity defaults to
// 1 and an empty currency to [DefaultCurrency].
func NewLineItem(description string, quantity int, unitPrice decimal.Decimal, currency string) (LineItem, error) {
	if quantity == 0 {
		quantity = 1
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	item := LineItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Currency:    currency,
	}
	if err := validateStruct(item); err != nil {
		return LineItem{}, err
	}
	return item, nil
}

// Total is quantity times unit price.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Display renders the item the way consent prompts show it.
func (li LineItem) Display() string {
	return fmt.Sprintf("%s x%d = %s", li.Description, li.Quantity, formatAmount(li.Currency, li.Total()))
}

// PaymentMandate is the merchant-held record of a payment awaiting or holding
// user authorization.
type PaymentMandate struct {
	MandateID       string `json:"mandate_id"`
	ShopperAgentID  string `json:"shopper_agent_id"`
	MerchantAgentID string `json:"merchant_agent_id"`
	UserID          string `json:"user_id"`

	LineItems []LineItem `json:"line_items"`
	Currency  string     `json:"currency"`

	Status                 MandateStatus `json:"status"`
	UserAuthorizationToken string        `json:"user_authorization_token,omitempty"`
	AuthorizationTimestamp *time.Time    `json:"authorization_timestamp,omitempty"`
	FailureReason          string        `json:"failure_reason,omitempty"`

	CreatedAt         time.Time `json:"created_at"`
	MerchantReference string    `json:"merchant_reference,omitempty"`
	Description       string    `json:"description,omitempty"`
}

// MandateParams carries the caller-supplied fields of a new mandate.
type MandateParams struct {
	ShopperAgentID    string     `json:"shopper_agent_id" validate:"required"`
	MerchantAgentID   string     `json:"merchant_agent_id" validate:"required"`
	UserID            string     `json:"user_id" validate:"required"`
	LineItems         []LineItem `json:"line_items" validate:"required,min=1,dive"`
	Currency          string     `json:"currency" validate:"omitempty,iso4217"`
	MerchantReference string     `json:"merchant_reference"`
	Description       string     `json:"description"`
}

// TotalAmount sums the line item totals. It is recomputed on every call.
func (m PaymentMandate) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range m.LineItems {
		total = total.Add(item.Total())
	}
	return total
}

// MarshalJSON adds the derived total_amount to the wire form.
func (m PaymentMandate) MarshalJSON() ([]byte, error) {
	type plain PaymentMandate
	return json.Marshal(struct {
		plain
		TotalAmount decimal.Decimal `json:"total_amount"`
	}{
		plain:       plain(m),
		TotalAmount: m.TotalAmount(),
	})
}

// MandateSummary is the display form of a mandate shown to users.
type MandateSummary struct {
	MandateID string        `json:"mandate_id"`
	Merchant  string        `json:"merchant"`
	Total     string        `json:"total"`
	Items     []string      `json:"items"`
	Status    MandateStatus `json:"status"`
}

// Summary renders the mandate for display.
func (m PaymentMandate) Summary() MandateSummary {
	items := make([]string, 0, len(m.LineItems))
	for _, item := range m.LineItems {
		items = append(items, item.Display())
	}
	return MandateSummary{
		MandateID: m.MandateID,
		Merchant:  m.MerchantAgentID,
		Total:     formatAmount(m.Currency, m.TotalAmount()),
		Items:     items,
		Status:    m.Status,
	}
}

func cloneMandate(m PaymentMandate) PaymentMandate {
	m.LineItems = append([]LineItem(nil), m.LineItems...)
	if m.AuthorizationTimestamp != nil {
		ts := *m.AuthorizationTimestamp
		m.AuthorizationTimestamp = &ts
	}
	return m
}

func formatAmount(currency string, amount decimal.Decimal) string {
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(2))
}
