package ap2

import "time"

// AuthorizationStatus is the user's decision on a pending authorization.
type AuthorizationStatus string

// Defines values for AuthorizationStatus.
const (
	AuthorizationStatusPendingUserInput AuthorizationStatus = "pending_user_input"
	AuthorizationStatusAuthorized       AuthorizationStatus = "authorized"
	AuthorizationStatusRejected         AuthorizationStatus = "rejected"
	AuthorizationStatusExpired          AuthorizationStatus = "expired"
)

// PendingAuthorization is the shopper's own record of a consent request. It
// shares the mandate id with the merchant's [PaymentMandate] but nothing else.
type PendingAuthorization struct {
	MandateID           string              `json:"mandate_id"`
	MerchantDisplayName string              `json:"merchant_display_name"`
	AmountDisplay       string              `json:"amount_display"`
	Description         string              `json:"description"`
	LineItemDisplay     []string            `json:"line_item_display"`
	Status              AuthorizationStatus `json:"status"`
	AuthorizationToken  string              `json:"authorization_token,omitempty"`
	RequestedAt         time.Time           `json:"requested_at"`
	ExpiresAt           *time.Time          `json:"expires_at,omitempty"`
	DecidedAt           *time.Time          `json:"decided_at,omitempty"`
	MerchantStatus      MandateStatus       `json:"merchant_status,omitempty"`
}

func clonePendingAuthorization(p PendingAuthorization) PendingAuthorization {
	p.LineItemDisplay = append([]string(nil), p.LineItemDisplay...)
	if p.ExpiresAt != nil {
		ts := *p.ExpiresAt
		p.ExpiresAt = &ts
	}
	if p.DecidedAt != nil {
		ts := *p.DecidedAt
		p.DecidedAt = &ts
	}
	return p
}

// PaymentMethod is a stored credential shown to the user by display name only.
type PaymentMethod struct {
	Type     string `json:"type" mapstructure:"type"`
	LastFour string `json:"last_four" mapstructure:"last_four"`
	Brand    string `json:"brand" mapstructure:"brand"`
}

// TravelPreferences are the user's standing booking preferences.
type TravelPreferences struct {
	PreferredClass    string   `json:"preferred_class" mapstructure:"preferred_class"`
	PreferredAirlines []string `json:"preferred_airlines" mapstructure:"preferred_airlines"`
	MaxLayovers       int      `json:"max_layovers" mapstructure:"max_layovers"`
	SeatPreference    string   `json:"seat_preference" mapstructure:"seat_preference"`
}

// UserSession identifies the human the shopper agent acts for.
type UserSession struct {
	UserID         string            `json:"user_id" mapstructure:"user_id" validate:"required"`
	Name           string            `json:"name" mapstructure:"name"`
	Preferences    TravelPreferences `json:"preferences" mapstructure:"preferences"`
	PaymentMethods []PaymentMethod   `json:"payment_methods" mapstructure:"payment_methods"`
}

// DefaultUserSession returns the demo traveller.
func DefaultUserSession() UserSession {
	return UserSession{
		UserID: "user_12345",
		Name:   "Demo User",
		Preferences: TravelPreferences{
			PreferredClass:    "economy",
			PreferredAirlines: []string{"SkyHigh Airlines", "Premium Air"},
			MaxLayovers:       1,
			SeatPreference:    "aisle",
		},
		PaymentMethods: []PaymentMethod{
			{Type: "card", LastFour: "4242", Brand: "Visa"},
			{Type: "card", LastFour: "5555", Brand: "Mastercard"},
		},
	}
}

// UserPreferencesResult is the get_user_preferences payload.
type UserPreferencesResult struct {
	UserID                  string            `json:"user_id"`
	Name                    string            `json:"name"`
	Preferences             TravelPreferences `json:"preferences"`
	PaymentMethodsAvailable int               `json:"payment_methods_available"`
}

// PaymentMethodDisplay is one entry of get_payment_methods.
type PaymentMethodDisplay struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Display string `json:"display"`
}

// PaymentMethodsResult is the get_payment_methods payload.
type PaymentMethodsResult struct {
	Status         string                 `json:"status"`
	PaymentMethods []PaymentMethodDisplay `json:"payment_methods"`
	DefaultMethod  int                    `json:"default_method"`
}

// MerchantSearchRequest carries search_merchant_flights arguments.
type MerchantSearchRequest struct {
	Origin      string `json:"origin" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	Date        string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	TravelClass string `json:"travel_class,omitempty"`
}

// MerchantSearch echoes the search terms.
type MerchantSearch struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	Date        *string `json:"date"`
}

// FlightOption is a flight as presented to the user.
type FlightOption struct {
	FlightID  string `json:"flight_id"`
	Airline   string `json:"airline"`
	Route     string `json:"route"`
	Departure string `json:"departure"`
	Arrival   string `json:"arrival"`
	Price     string `json:"price"`
	Class     string `json:"class"`
}

// MerchantSearchResult is the search_merchant_flights payload.
type MerchantSearchResult struct {
	Status  string         `json:"status"`
	Source  string         `json:"source"`
	Search  MerchantSearch `json:"search"`
	Results []FlightOption `json:"results"`
	Message string         `json:"message"`
}

// InitiateBookingRequest carries initiate_booking arguments.
type InitiateBookingRequest struct {
	FlightID      string `json:"flight_id" validate:"required"`
	PassengerName string `json:"passenger_name" validate:"required"`
}

// BookingDetails names what is being booked.
type BookingDetails struct {
	FlightID  string `json:"flight_id"`
	Passenger string `json:"passenger"`
}

// PaymentBreakdown is the display form of [MandatePricing].
type PaymentBreakdown struct {
	Subtotal string `json:"subtotal"`
	Taxes    string `json:"taxes"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

// InitiateBookingResult is the initiate_booking payload.
type InitiateBookingResult struct {
	Status         string           `json:"status"`
	Message        string           `json:"message"`
	MandateID      string           `json:"mandate_id"`
	Merchant       string           `json:"merchant"`
	BookingDetails BookingDetails   `json:"booking_details"`
	Payment        PaymentBreakdown `json:"payment"`
	LineItems      []string         `json:"line_items"`
	NextStep       string           `json:"next_step"`
}

// AuthorizationRequest carries request_user_authorization arguments.
type AuthorizationRequest struct {
	MandateID    string   `json:"mandate_id" validate:"required"`
	MerchantName string   `json:"merchant_name" validate:"required"`
	Amount       string   `json:"amount" validate:"required"`
	Description  string   `json:"description"`
	LineItems    []string `json:"line_items" validate:"required,min=1"`
}

// AuthorizationRequestResult is the request_user_authorization payload.
type AuthorizationRequestResult struct {
	Status             string `json:"status"`
	MandateID          string `json:"mandate_id"`
	PromptToUser       string `json:"prompt_to_user"`
	RequiresUserAction bool   `json:"requires_user_action"`
}

// ConfirmPaymentRequest carries the user's decision.
type ConfirmPaymentRequest struct {
	Approved *bool `json:"approved"`
}

// ConfirmPaymentResult is the confirm_payment payload. Rejections never
// carry a token.
type ConfirmPaymentResult struct {
	Status             AuthorizationStatus `json:"status"`
	MandateID          string              `json:"mandate_id"`
	Message            string              `json:"message,omitempty"`
	AuthorizationToken string              `json:"authorization_token,omitempty"`
	UserID             string              `json:"user_id,omitempty"`
	Timestamp          *time.Time          `json:"timestamp,omitempty"`
}

// Result status values specific to the shopper role.
const (
	ResultStatusMandateCreated        = "mandate_created"
	ResultStatusAuthorizationRequired = "authorization_required"
)
