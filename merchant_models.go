package ap2

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResultStatusSuccess is the status of a successful merchant operation.
const ResultStatusSuccess = "success"

// SearchFlightsResult is the search_flights payload.
type SearchFlightsResult struct {
	Status       string      `json:"status"`
	Query        FlightQuery `json:"query"`
	ResultsCount int         `json:"results_count"`
	Flights      []Flight    `json:"flights"`
}

// FlightDetailsResult is the get_flight_details payload.
type FlightDetailsResult struct {
	Status   string         `json:"status"`
	Flight   Flight         `json:"flight"`
	Policies FlightPolicies `json:"policies"`
}

// CreateBookingMandateRequest carries create_booking_mandate arguments.
type CreateBookingMandateRequest struct {
	FlightID       string `json:"flight_id" validate:"required"`
	PassengerName  string `json:"passenger_name" validate:"required"`
	ShopperAgentID string `json:"shopper_agent_id" validate:"required"`
	UserID         string `json:"user_id" validate:"required"`
}

// MandatePricing breaks a mandate total into fare and surcharges.
type MandatePricing struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Taxes    decimal.Decimal `json:"taxes"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// CreateBookingMandateResult is the create_booking_mandate payload.
type CreateBookingMandateResult struct {
	Status                string         `json:"status"`
	Message               string         `json:"message"`
	Mandate               MandateSummary `json:"mandate"`
	MandateID             string         `json:"mandate_id"`
	RequiresAuthorization bool           `json:"requires_authorization"`
	AuthorizationPrompt   string         `json:"authorization_prompt"`
	Pricing               MandatePricing `json:"pricing"`
}

// AuthorizationTokenRequest carries the token the shopper obtained from the user.
type AuthorizationTokenRequest struct {
	AuthorizationToken string `json:"authorization_token" validate:"required"`
}

// AuthorizeMandateResult confirms the merchant recorded the user's token.
type AuthorizeMandateResult struct {
	Status                 string        `json:"status"`
	MandateID              string        `json:"mandate_id"`
	MandateStatus          MandateStatus `json:"mandate_status"`
	AuthorizationTimestamp time.Time     `json:"authorization_timestamp"`
}

// Booking is the merchant's record of a paid mandate.
type Booking struct {
	BookingID string          `json:"booking_id"`
	MandateID string          `json:"mandate_id"`
	FlightID  string          `json:"flight_id"`
	Status    string          `json:"status"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}

// BookingConfirmation is the booking block of a payment result.
type BookingConfirmation struct {
	BookingID        string `json:"booking_id"`
	FlightID         string `json:"flight_id"`
	ConfirmationCode string `json:"confirmation_code"`
	AmountCharged    string `json:"amount_charged"`
	PaymentStatus    string `json:"payment_status"`
}

// Receipt ties a completed payment back to its mandate and parties.
type Receipt struct {
	MandateID              string     `json:"mandate_id"`
	AuthorizationTimestamp *time.Time `json:"authorization_timestamp"`
	Merchant               string     `json:"merchant"`
	Shopper                string     `json:"shopper"`
}

// ProcessPaymentResult is the process_authorized_payment payload.
type ProcessPaymentResult struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Booking BookingConfirmation `json:"booking"`
	Receipt Receipt             `json:"ap2_receipt"`
}

// MandateResult wraps a full mandate record.
type MandateResult struct {
	Status  string         `json:"status"`
	Mandate PaymentMandate `json:"mandate"`
}

// FailMandateRequest carries the reason for a failed mandate.
type FailMandateRequest struct {
	Reason string `json:"reason" validate:"required"`
}
