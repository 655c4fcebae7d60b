package ap2

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sumup/ap2/store"
)

// DefaultMerchantAgentID names the merchant when no agent id is configured.
const DefaultMerchantAgentID = "flight_merchant_agent"

// taxRate is the fixed surcharge applied to every fare.
var taxRate = decimal.RequireFromString("0.12")

type merchantConfig struct {
	agentID  string
	mandates store.Store[PaymentMandate]
	bookings store.Store[Booking]
	verifier TokenVerifier
	notifier MandateNotifier
	logger   *slog.Logger
	clock    func() time.Time
}

// MerchantOption customizes a [Merchant].
type MerchantOption func(*merchantConfig)

// WithMerchantAgentID sets the merchant identity written into mandates.
func WithMerchantAgentID(id string) MerchantOption {
	return func(cfg *merchantConfig) {
		cfg.agentID = id
	}
}

// WithMandateStore replaces the default in-memory mandate store.
func WithMandateStore(s store.Store[PaymentMandate]) MerchantOption {
	return func(cfg *merchantConfig) {
		cfg.mandates = s
	}
}

// WithBookingStore replaces the default in-memory booking store.
func WithBookingStore(s store.Store[Booking]) MerchantOption {
	return func(cfg *merchantConfig) {
		cfg.bookings = s
	}
}

// WithTokenVerifier makes the merchant check tokens presented at
// authorization against its own mandate record.
func WithTokenVerifier(v TokenVerifier) MerchantOption {
	return func(cfg *merchantConfig) {
		cfg.verifier = v
	}
}

// WithMandateNotifier publishes lifecycle events to the shopper.
func WithMandateNotifier(n MandateNotifier) MerchantOption {
	return func(cfg *merchantConfig) {
		cfg.notifier = n
	}
}

// WithMerchantLogger sets the merchant logger.
func WithMerchantLogger(logger *slog.Logger) MerchantOption {
	return func(cfg *merchantConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMerchantClock provides deterministic time in tests.
func WithMerchantClock(fn func() time.Time) MerchantOption {
	return func(cfg *merchantConfig) {
		cfg.clock = fn
	}
}

// Merchant owns the mandate lifecycle: it issues mandates for bookings,
// records user authorization, and processes authorized payments.
type Merchant struct {
	catalog FlightCatalog
	cfg     merchantConfig
}

// NewMerchant builds a [Merchant] selling from catalog.
func NewMerchant(catalog FlightCatalog, opts ...MerchantOption) *Merchant {
	if catalog == nil {
		panic("ap2: merchant catalog is required")
	}
	cfg := merchantConfig{
		agentID: DefaultMerchantAgentID,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.mandates == nil {
		cfg.mandates = store.NewMemory(store.WithClone(cloneMandate))
	}
	if cfg.bookings == nil {
		cfg.bookings = store.NewMemory[Booking]()
	}
	return &Merchant{catalog: catalog, cfg: cfg}
}

// AgentID returns the merchant identity.
func (m *Merchant) AgentID() string {
	return m.cfg.agentID
}

// SearchFlights lists bookable flights matching query.
func (m *Merchant) SearchFlights(ctx context.Context, query FlightQuery) (*SearchFlightsResult, error) {
	if err := validateStruct(query); err != nil {
		return nil, err
	}
	flights, err := m.catalog.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return &SearchFlightsResult{
		Status:       ResultStatusSuccess,
		Query:        query,
		ResultsCount: len(flights),
		Flights:      flights,
	}, nil
}

// GetFlightDetails returns one flight with its fare policies.
func (m *Merchant) GetFlightDetails(ctx context.Context, flightID string) (*FlightDetailsResult, error) {
	flight, err := m.catalog.Flight(ctx, flightID)
	if err != nil {
		return nil, err
	}
	return &FlightDetailsResult{
		Status:   ResultStatusSuccess,
		Flight:   flight,
		Policies: m.catalog.Policies(),
	}, nil
}

// CreateBookingMandate issues a PENDING mandate for one seat on a flight:
// the base fare plus a 12% tax line rounded to cents.
func (m *Merchant) CreateBookingMandate(ctx context.Context, req CreateBookingMandateRequest) (*CreateBookingMandateResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	flight, err := m.catalog.Flight(ctx, req.FlightID)
	if err != nil {
		return nil, err
	}
	if flight.SeatsAvailable <= 0 {
		return nil, NewUnavailableError("No seats available on this flight")
	}

	taxes := flight.Price.Mul(taxRate).Round(2)
	fare, err := NewLineItem(fmt.Sprintf("Flight %s: %s → %s", flight.FlightID, flight.Origin, flight.Destination), 1, flight.Price, DefaultCurrency)
	if err != nil {
		return nil, err
	}
	surcharge, err := NewLineItem("Taxes and fees", 1, taxes, DefaultCurrency)
	if err != nil {
		return nil, err
	}
	mandate, err := NewPaymentMandate(MandateParams{
		ShopperAgentID:    req.ShopperAgentID,
		MerchantAgentID:   m.cfg.agentID,
		UserID:            req.UserID,
		LineItems:         []LineItem{fare, surcharge},
		Currency:          DefaultCurrency,
		MerchantReference: flight.FlightID,
		Description:       fmt.Sprintf("Flight booking for %s", req.PassengerName),
	}, m.cfg.clock())
	if err != nil {
		return nil, err
	}
	if err := m.cfg.mandates.Put(ctx, mandate.MandateID, mandate); err != nil {
		return nil, storeError("mandate", mandate.MandateID, err)
	}
	m.cfg.logger.InfoContext(ctx, "mandate created",
		slog.String("mandate_id", mandate.MandateID),
		slog.String("flight_id", flight.FlightID),
		slog.String("shopper_agent_id", req.ShopperAgentID),
		slog.String("total", mandate.TotalAmount().StringFixed(2)),
	)

	total := mandate.TotalAmount()
	return &CreateBookingMandateResult{
		Status:                ResultStatusSuccess,
		Message:               "Payment mandate created - awaiting user authorization",
		Mandate:               mandate.Summary(),
		MandateID:             mandate.MandateID,
		RequiresAuthorization: true,
		AuthorizationPrompt:   fmt.Sprintf("Do you authorize payment of %s for flight %s?", formatAmount(mandate.Currency, total), flight.FlightID),
		Pricing: MandatePricing{
			Subtotal: flight.Price,
			Taxes:    taxes,
			Total:    total,
			Currency: mandate.Currency,
		},
	}, nil
}

// GetMandate returns the merchant's record of a mandate.
func (m *Merchant) GetMandate(ctx context.Context, mandateID string) (*MandateResult, error) {
	mandate, err := m.cfg.mandates.Get(ctx, mandateID)
	if err != nil {
		return nil, storeError("Mandate", mandateID, err)
	}
	return &MandateResult{Status: ResultStatusSuccess, Mandate: mandate}, nil
}

// AuthorizeMandate records the user's authorization token on a PENDING
// mandate. A second call fails and leaves the first token in place.
func (m *Merchant) AuthorizeMandate(ctx context.Context, mandateID, token string) (*AuthorizeMandateResult, error) {
	now := m.cfg.clock()
	mandate, err := m.cfg.mandates.Update(ctx, mandateID, func(md *PaymentMandate) error {
		if md.Status != MandateStatusPending {
			return NewInvalidTransitionError(fmt.Sprintf("Mandate is not pending (status: %s)", md.Status))
		}
		if m.cfg.verifier != nil && token != "" {
			if err := m.cfg.verifier.Verify(ctx, *md, token); err != nil {
				return err
			}
		}
		return md.Authorize(token, now)
	})
	if err != nil {
		return nil, storeError("Mandate", mandateID, err)
	}
	m.logTransition(ctx, mandateID, MandateStatusPending, MandateStatusAuthorized)
	m.notify(ctx, MandateEventAuthorized, mandate, nil)
	return &AuthorizeMandateResult{
		Status:                 ResultStatusSuccess,
		MandateID:              mandate.MandateID,
		MandateStatus:          mandate.Status,
		AuthorizationTimestamp: *mandate.AuthorizationTimestamp,
	}, nil
}

// ProcessAuthorizedPayment charges an AUTHORIZED mandate, books the seat
// and moves the mandate through PROCESSING to COMPLETED. The presented
// token must equal the one recorded at authorization.
func (m *Merchant) ProcessAuthorizedPayment(ctx context.Context, mandateID, token string) (*ProcessPaymentResult, error) {
	if token == "" {
		return nil, NewValidationError("authorization_token is required", WithOffendingParam("authorization_token"))
	}
	mandate, err := m.cfg.mandates.Update(ctx, mandateID, func(md *PaymentMandate) error {
		if md.Status != MandateStatusAuthorized {
			return NewInvalidTransitionError(fmt.Sprintf("Mandate is not authorized (status: %s)", md.Status))
		}
		if subtle.ConstantTimeCompare([]byte(md.UserAuthorizationToken), []byte(token)) != 1 {
			return NewUnauthorizedError("authorization token does not match mandate", WithOffendingParam("authorization_token"))
		}
		return md.BeginProcessing()
	})
	if err != nil {
		return nil, storeError("Mandate", mandateID, err)
	}
	m.logTransition(ctx, mandateID, MandateStatusAuthorized, MandateStatusProcessing)

	if err := m.catalog.ReserveSeat(ctx, mandate.MerchantReference); err != nil {
		if _, failErr := m.FailMandate(ctx, mandateID, err.Error()); failErr != nil {
			m.cfg.logger.ErrorContext(ctx, "failing mandate after reservation error",
				slog.String("mandate_id", mandateID),
				slog.Any("error", failErr),
			)
		}
		return nil, err
	}

	total := mandate.TotalAmount()
	booking := Booking{
		BookingID: bookingID(mandate.MandateID),
		MandateID: mandate.MandateID,
		FlightID:  mandate.MerchantReference,
		Status:    "confirmed",
		TotalPaid: total,
	}
	if err := m.cfg.bookings.Put(ctx, mandate.MandateID, booking); err != nil {
		err = storeError("booking", mandate.MandateID, err)
		if _, failErr := m.FailMandate(ctx, mandateID, err.Error()); failErr != nil {
			m.cfg.logger.ErrorContext(ctx, "failing mandate after booking error",
				slog.String("mandate_id", mandateID),
				slog.Any("error", failErr),
			)
		}
		return nil, err
	}

	mandate, err = m.cfg.mandates.Update(ctx, mandateID, func(md *PaymentMandate) error {
		return md.Complete()
	})
	if err != nil {
		return nil, storeError("Mandate", mandateID, err)
	}
	m.logTransition(ctx, mandateID, MandateStatusProcessing, MandateStatusCompleted)

	confirmation := BookingConfirmation{
		BookingID:        booking.BookingID,
		FlightID:         booking.FlightID,
		ConfirmationCode: booking.BookingID,
		AmountCharged:    formatAmount(mandate.Currency, total),
		PaymentStatus:    string(MandateStatusCompleted),
	}
	m.notify(ctx, MandateEventCompleted, mandate, &confirmation)

	return &ProcessPaymentResult{
		Status:  ResultStatusSuccess,
		Message: "Payment processed and booking confirmed!",
		Booking: confirmation,
		Receipt: Receipt{
			MandateID:              mandate.MandateID,
			AuthorizationTimestamp: mandate.AuthorizationTimestamp,
			Merchant:               mandate.MerchantAgentID,
			Shopper:                mandate.ShopperAgentID,
		},
	}, nil
}

// CancelMandate withdraws a PENDING mandate.
func (m *Merchant) CancelMandate(ctx context.Context, mandateID string) (*MandateResult, error) {
	var from MandateStatus
	mandate, err := m.cfg.mandates.Update(ctx, mandateID, func(md *PaymentMandate) error {
		from = md.Status
		return md.Cancel()
	})
	if err != nil {
		return nil, storeError("Mandate", mandateID, err)
	}
	m.logTransition(ctx, mandateID, from, MandateStatusCancelled)
	m.notify(ctx, MandateEventCancelled, mandate, nil)
	return &MandateResult{Status: ResultStatusSuccess, Mandate: mandate}, nil
}

// FailMandate terminates a mandate that has not completed.
func (m *Merchant) FailMandate(ctx context.Context, mandateID, reason string) (*MandateResult, error) {
	var from MandateStatus
	mandate, err := m.cfg.mandates.Update(ctx, mandateID, func(md *PaymentMandate) error {
		from = md.Status
		return md.Fail(reason)
	})
	if err != nil {
		return nil, storeError("Mandate", mandateID, err)
	}
	m.logTransition(ctx, mandateID, from, MandateStatusFailed)
	m.notify(ctx, MandateEventFailed, mandate, nil)
	return &MandateResult{Status: ResultStatusSuccess, Mandate: mandate}, nil
}

// Booking returns the booking recorded for a completed mandate. Bookings are
// keyed by mandate id; BookingID is the display reference only.
func (m *Merchant) Booking(ctx context.Context, mandateID string) (Booking, error) {
	b, err := m.cfg.bookings.Get(ctx, mandateID)
	if err != nil {
		return Booking{}, storeError("Booking for mandate", mandateID, err)
	}
	return b, nil
}

func (m *Merchant) logTransition(ctx context.Context, mandateID string, from, to MandateStatus) {
	m.cfg.logger.InfoContext(ctx, "mandate transition",
		slog.String("mandate_id", mandateID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (m *Merchant) notify(ctx context.Context, typ MandateEventType, mandate PaymentMandate, booking *BookingConfirmation) {
	if m.cfg.notifier == nil {
		return
	}
	event, err := newMandateEvent(typ, mandate, booking, m.cfg.clock())
	if err == nil {
		err = m.cfg.notifier.NotifyMandate(ctx, event)
	}
	if err != nil {
		m.cfg.logger.WarnContext(ctx, "mandate notification failed",
			slog.String("mandate_id", mandate.MandateID),
			slog.String("event", string(typ)),
			slog.Any("error", err),
		)
	}
}

func bookingID(mandateID string) string {
	id := strings.ReplaceAll(mandateID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "BK" + strings.ToUpper(id)
}
