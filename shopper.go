package ap2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sumup/ap2/store"
)

// DefaultShopperAgentID names the shopper when no agent id is configured.
const DefaultShopperAgentID = "travel_shopper_agent"

// MerchantGateway is how the shopper reaches the merchant role. [*Merchant]
// satisfies it in-process and [*MerchantClient] over HTTP.
type MerchantGateway interface {
	SearchFlights(ctx context.Context, query FlightQuery) (*SearchFlightsResult, error)
	CreateBookingMandate(ctx context.Context, req CreateBookingMandateRequest) (*CreateBookingMandateResult, error)
	AuthorizeMandate(ctx context.Context, mandateID, token string) (*AuthorizeMandateResult, error)
	ProcessAuthorizedPayment(ctx context.Context, mandateID, token string) (*ProcessPaymentResult, error)
}

type shopperConfig struct {
	agentID string
	session UserSession
	pending store.Store[PendingAuthorization]
	issuer  TokenIssuer
	ttl     time.Duration
	logger  *slog.Logger
	clock   func() time.Time
}

// ShopperOption customizes a [Shopper].
type ShopperOption func(*shopperConfig)

// WithShopperAgentID sets the shopper identity sent to merchants.
func WithShopperAgentID(id string) ShopperOption {
	return func(cfg *shopperConfig) {
		cfg.agentID = id
	}
}

// WithUserSession sets the user the shopper acts for.
func WithUserSession(session UserSession) ShopperOption {
	return func(cfg *shopperConfig) {
		cfg.session = session
	}
}

// WithPendingStore replaces the default in-memory pending authorization store.
func WithPendingStore(s store.Store[PendingAuthorization]) ShopperOption {
	return func(cfg *shopperConfig) {
		cfg.pending = s
	}
}

// WithTokenIssuer replaces the default [DigestTokenIssuer].
func WithTokenIssuer(issuer TokenIssuer) ShopperOption {
	return func(cfg *shopperConfig) {
		cfg.issuer = issuer
	}
}

// WithAuthorizationTTL expires consent requests the user has not answered
// within ttl. Zero disables expiry.
func WithAuthorizationTTL(ttl time.Duration) ShopperOption {
	if ttl < 0 {
		panic("ap2: authorization ttl must not be negative")
	}
	return func(cfg *shopperConfig) {
		cfg.ttl = ttl
	}
}

// WithShopperLogger sets the shopper logger.
func WithShopperLogger(logger *slog.Logger) ShopperOption {
	return func(cfg *shopperConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithShopperClock provides deterministic time in tests.
func WithShopperClock(fn func() time.Time) ShopperOption {
	return func(cfg *shopperConfig) {
		cfg.clock = fn
	}
}

// Shopper is the user-side agent: it asks the user to approve mandates and,
// only on approval, derives the token that unlocks payment.
type Shopper struct {
	merchant MerchantGateway
	cfg      shopperConfig
}

// NewShopper builds a [Shopper]. merchant may be nil when only the
// authorization operations are needed.
func NewShopper(merchant MerchantGateway, opts ...ShopperOption) *Shopper {
	cfg := shopperConfig{
		agentID: DefaultShopperAgentID,
		session: DefaultUserSession(),
		issuer:  DigestTokenIssuer{},
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.pending == nil {
		cfg.pending = store.NewMemory(store.WithClone(clonePendingAuthorization))
	}
	return &Shopper{merchant: merchant, cfg: cfg}
}

// AgentID returns the shopper identity.
func (s *Shopper) AgentID() string {
	return s.cfg.agentID
}

// GetUserPreferences describes the current user.
func (s *Shopper) GetUserPreferences(context.Context) (*UserPreferencesResult, error) {
	session := s.cfg.session
	return &UserPreferencesResult{
		UserID:                  session.UserID,
		Name:                    session.Name,
		Preferences:             session.Preferences,
		PaymentMethodsAvailable: len(session.PaymentMethods),
	}, nil
}

// GetPaymentMethods lists the user's payment methods by display name.
func (s *Shopper) GetPaymentMethods(context.Context) (*PaymentMethodsResult, error) {
	methods := make([]PaymentMethodDisplay, 0, len(s.cfg.session.PaymentMethods))
	for i, pm := range s.cfg.session.PaymentMethods {
		methods = append(methods, PaymentMethodDisplay{
			Index:   i,
			Type:    pm.Type,
			Display: fmt.Sprintf("%s ending in %s", pm.Brand, pm.LastFour),
		})
	}
	return &PaymentMethodsResult{
		Status:         ResultStatusSuccess,
		PaymentMethods: methods,
		DefaultMethod:  0,
	}, nil
}

func (s *Shopper) gateway() (MerchantGateway, error) {
	if s.merchant == nil {
		return nil, NewProcessingError("merchant gateway is not configured")
	}
	return s.merchant, nil
}

// SearchMerchantFlights asks the merchant for flights and formats them for
// the user.
func (s *Shopper) SearchMerchantFlights(ctx context.Context, req MerchantSearchRequest) (*MerchantSearchResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	merchant, err := s.gateway()
	if err != nil {
		return nil, err
	}
	query := FlightQuery{Origin: req.Origin, Destination: req.Destination, TravelClass: req.TravelClass}
	search := MerchantSearch{Origin: req.Origin, Destination: req.Destination}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			return nil, NewValidationError("date must be formatted as YYYY-MM-DD", WithOffendingParam("date"))
		}
		query.Date = &date
		search.Date = &req.Date
	}
	found, err := merchant.SearchFlights(ctx, query)
	if err != nil {
		return nil, err
	}
	results := make([]FlightOption, 0, len(found.Flights))
	for _, f := range found.Flights {
		results = append(results, FlightOption{
			FlightID:  f.FlightID,
			Airline:   f.Airline,
			Route:     fmt.Sprintf("%s → %s", f.Origin, f.Destination),
			Departure: f.Departure,
			Arrival:   f.Arrival,
			Price:     displayPrice(DefaultCurrency, f.Price),
			Class:     f.Class,
		})
	}
	return &MerchantSearchResult{
		Status:  ResultStatusSuccess,
		Source:  DefaultMerchantAgentID,
		Search:  search,
		Results: results,
		Message: fmt.Sprintf("Found %d flights from %s to %s", len(results), req.Origin, req.Destination),
	}, nil
}

// InitiateBooking asks the merchant to issue a mandate for the flight on
// behalf of the current user.
func (s *Shopper) InitiateBooking(ctx context.Context, req InitiateBookingRequest) (*InitiateBookingResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	merchant, err := s.gateway()
	if err != nil {
		return nil, err
	}
	created, err := merchant.CreateBookingMandate(ctx, CreateBookingMandateRequest{
		FlightID:       req.FlightID,
		PassengerName:  req.PassengerName,
		ShopperAgentID: s.cfg.agentID,
		UserID:         s.cfg.session.UserID,
	})
	if err != nil {
		return nil, err
	}
	pricing := created.Pricing
	return &InitiateBookingResult{
		Status:    ResultStatusMandateCreated,
		Message:   "Merchant created payment mandate - user authorization required",
		MandateID: created.MandateID,
		Merchant:  created.Mandate.Merchant,
		BookingDetails: BookingDetails{
			FlightID:  req.FlightID,
			Passenger: req.PassengerName,
		},
		Payment: PaymentBreakdown{
			Subtotal: displayPrice(pricing.Currency, pricing.Subtotal),
			Taxes:    displayPrice(pricing.Currency, pricing.Taxes),
			Total:    displayPrice(pricing.Currency, pricing.Total),
			Currency: pricing.Currency,
		},
		LineItems: slices.Clone(created.Mandate.Items),
		NextStep:  "Request user authorization using request_user_authorization tool",
	}, nil
}

// RequestUserAuthorization stores a pending authorization and returns the
// consent prompt. Asking again before the user decides replaces the request;
// asking after a decision fails.
func (s *Shopper) RequestUserAuthorization(ctx context.Context, req AuthorizationRequest) (*AuthorizationRequestResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	now := s.cfg.clock().UTC()
	record := PendingAuthorization{
		MandateID:           req.MandateID,
		MerchantDisplayName: req.MerchantName,
		AmountDisplay:       req.Amount,
		Description:         req.Description,
		LineItemDisplay:     slices.Clone(req.LineItems),
		Status:              AuthorizationStatusPendingUserInput,
		RequestedAt:         now,
	}
	if s.cfg.ttl > 0 {
		expires := now.Add(s.cfg.ttl)
		record.ExpiresAt = &expires
	}

	err := s.cfg.pending.Put(ctx, req.MandateID, record)
	if errors.Is(err, store.ErrDuplicate) {
		_, err = s.cfg.pending.Update(ctx, req.MandateID, func(p *PendingAuthorization) error {
			switch p.Status {
			case AuthorizationStatusPendingUserInput, AuthorizationStatusExpired:
				*p = record
				return nil
			default:
				return NewInvalidTransitionError(fmt.Sprintf("authorization for mandate %s is already %s", req.MandateID, p.Status))
			}
		})
	}
	if err != nil {
		return nil, storeError("authorization", req.MandateID, err)
	}
	s.cfg.logger.InfoContext(ctx, "user authorization requested",
		slog.String("mandate_id", req.MandateID),
		slog.String("merchant", req.MerchantName),
		slog.String("amount", req.Amount),
	)
	return &AuthorizationRequestResult{
		Status:             ResultStatusAuthorizationRequired,
		MandateID:          req.MandateID,
		PromptToUser:       RenderConsentPrompt(record),
		RequiresUserAction: true,
	}, nil
}

// ConfirmPayment applies the user's decision to a pending authorization.
// Approval derives the authorization token; rejection never does. Each
// pending authorization accepts exactly one decision.
func (s *Shopper) ConfirmPayment(ctx context.Context, mandateID string, approved bool) (*ConfirmPaymentResult, error) {
	now := s.cfg.clock().UTC()
	var expired bool
	record, err := s.cfg.pending.Update(ctx, mandateID, func(p *PendingAuthorization) error {
		if p.Status != AuthorizationStatusPendingUserInput {
			return NewInvalidTransitionError(fmt.Sprintf("authorization for mandate %s is already %s", mandateID, p.Status))
		}
		if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
			p.Status = AuthorizationStatusExpired
			expired = true
			return nil
		}
		if !approved {
			p.Status = AuthorizationStatusRejected
			p.DecidedAt = &now
			return nil
		}
		token, err := s.cfg.issuer.Issue(TokenClaims{
			MandateID: mandateID,
			UserID:    s.cfg.session.UserID,
			IssuedAt:  now,
		})
		if err != nil {
			return NewProcessingError(fmt.Sprintf("derive authorization token: %v", err))
		}
		p.Status = AuthorizationStatusAuthorized
		p.AuthorizationToken = token
		p.DecidedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFoundError(fmt.Sprintf("No pending mandate found with ID %s", mandateID))
		}
		return nil, storeError("authorization", mandateID, err)
	}
	if expired {
		s.cfg.logger.InfoContext(ctx, "user authorization expired", slog.String("mandate_id", mandateID))
		return nil, NewInvalidTransitionError(fmt.Sprintf("authorization request for mandate %s expired", mandateID))
	}

	s.cfg.logger.InfoContext(ctx, "user authorization decided",
		slog.String("mandate_id", mandateID),
		slog.String("status", string(record.Status)),
	)
	if record.Status == AuthorizationStatusRejected {
		return &ConfirmPaymentResult{
			Status:    AuthorizationStatusRejected,
			MandateID: mandateID,
			Message:   "User rejected the payment authorization",
		}, nil
	}
	return &ConfirmPaymentResult{
		Status:             AuthorizationStatusAuthorized,
		MandateID:          mandateID,
		Message:            "Payment authorized by user",
		AuthorizationToken: record.AuthorizationToken,
		UserID:             s.cfg.session.UserID,
		Timestamp:          record.DecidedAt,
	}, nil
}

// SubmitAuthorization carries an approved token to the merchant, which
// records it and then processes the payment.
func (s *Shopper) SubmitAuthorization(ctx context.Context, mandateID string) (*ProcessPaymentResult, error) {
	merchant, err := s.gateway()
	if err != nil {
		return nil, err
	}
	record, err := s.cfg.pending.Get(ctx, mandateID)
	if err != nil {
		return nil, storeError("authorization", mandateID, err)
	}
	if record.Status != AuthorizationStatusAuthorized {
		return nil, NewInvalidTransitionError(fmt.Sprintf("authorization for mandate %s is %s, not authorized", mandateID, record.Status))
	}
	if record.MerchantStatus.stage() < MandateStatusAuthorized.stage() {
		_, err := merchant.AuthorizeMandate(ctx, mandateID, record.AuthorizationToken)
		switch {
		case err == nil:
			s.recordMerchantStatus(ctx, mandateID, MandateStatusAuthorized)
		case IsErrorType(err, InvalidTransition):
			// Recorded by an earlier attempt; processing checks the status itself.
		default:
			return nil, err
		}
	}
	receipt, err := merchant.ProcessAuthorizedPayment(ctx, mandateID, record.AuthorizationToken)
	if err != nil {
		return nil, err
	}
	s.recordMerchantStatus(ctx, mandateID, MandateStatusCompleted)
	return receipt, nil
}

func (s *Shopper) recordMerchantStatus(ctx context.Context, mandateID string, status MandateStatus) {
	if _, err := s.cfg.pending.Update(ctx, mandateID, func(p *PendingAuthorization) error {
		advanceMerchantStatus(p, status)
		return nil
	}); err != nil {
		s.cfg.logger.WarnContext(ctx, "recording merchant status", slog.String("mandate_id", mandateID), slog.Any("error", err))
	}
}

// advanceMerchantStatus moves p.MerchantStatus forward along the lifecycle.
// Stale or repeated statuses are ignored and reported as false.
func advanceMerchantStatus(p *PendingAuthorization, next MandateStatus) bool {
	if next.stage() <= p.MerchantStatus.stage() {
		return false
	}
	p.MerchantStatus = next
	return true
}

// PendingAuthorization returns the shopper's record for a mandate.
func (s *Shopper) PendingAuthorization(ctx context.Context, mandateID string) (PendingAuthorization, error) {
	record, err := s.cfg.pending.Get(ctx, mandateID)
	if err != nil {
		return PendingAuthorization{}, storeError("authorization", mandateID, err)
	}
	return record, nil
}

// HandleMandateEvent records the merchant-reported status of a mandate the
// shopper has asked the user about. The event type must agree with the
// reported status; events older than the recorded status are ignored.
func (s *Shopper) HandleMandateEvent(ctx context.Context, event MandateEvent) error {
	change, err := event.Data.AsMandateStatusChange()
	if err != nil {
		return NewValidationError(fmt.Sprintf("decode event data: %v", err))
	}
	if change.MandateID == "" || !change.Status.Valid() {
		return NewValidationError("event data requires mandate_id and a known status")
	}
	if want, ok := event.Type.Status(); !ok || want != change.Status {
		return NewValidationError(fmt.Sprintf("event %s cannot report status %s", event.Type, change.Status), WithOffendingParam("data.status"))
	}
	var applied bool
	_, err = s.cfg.pending.Update(ctx, change.MandateID, func(p *PendingAuthorization) error {
		applied = advanceMerchantStatus(p, change.Status)
		return nil
	})
	if err != nil {
		return storeError("authorization", change.MandateID, err)
	}
	s.cfg.logger.InfoContext(ctx, "merchant mandate event",
		slog.String("mandate_id", change.MandateID),
		slog.String("event", string(event.Type)),
		slog.String("merchant_status", string(change.Status)),
		slog.Bool("applied", applied),
	)
	return nil
}

// displayPrice renders amounts the way users read them: "$1,450.00" for
// dollars, "EUR 12.00" otherwise.
func displayPrice(currency string, amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	if currency == DefaultCurrency {
		return sign + "$" + grouped.String() + "." + frac
	}
	return currency + " " + sign + grouped.String() + "." + frac
}
