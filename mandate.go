package ap2

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

var mandateTransitions = map[MandateStatus][]MandateStatus{
	MandateStatusPending:    {MandateStatusAuthorized, MandateStatusFailed, MandateStatusCancelled},
	MandateStatusAuthorized: {MandateStatusProcessing, MandateStatusFailed},
	MandateStatusProcessing: {MandateStatusCompleted, MandateStatusFailed},
	MandateStatusCompleted:  {},
	MandateStatusFailed:     {},
	MandateStatusCancelled:  {},
}

// Valid reports whether s is a known status.
func (s MandateStatus) Valid() bool {
	_, ok := mandateTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s MandateStatus) IsTerminal() bool {
	next, ok := mandateTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s MandateStatus) CanTransitionTo(next MandateStatus) bool {
	return slices.Contains(mandateTransitions[s], next)
}

// stage orders statuses along the lifecycle. Terminal statuses share the last
// stage; unknown statuses sort first.
func (s MandateStatus) stage() int {
	switch {
	case s == MandateStatusPending:
		return 1
	case s == MandateStatusAuthorized:
		return 2
	case s == MandateStatusProcessing:
		return 3
	case s.IsTerminal():
		return 4
	default:
		return 0
	}
}

// NewPaymentMandate validates params and builds a PENDING mandate with a
// fresh id. Every line item must use the mandate currency.
func NewPaymentMandate(params MandateParams, now time.Time) (PaymentMandate, error) {
	if params.Currency == "" {
		params.Currency = DefaultCurrency
	}
	if err := validateStruct(params); err != nil {
		return PaymentMandate{}, err
	}
	for i, item := range params.LineItems {
		if item.Currency != params.Currency {
			path := fmt.Sprintf("line_items[%d].currency", i)
			return PaymentMandate{}, NewValidationError(
				fmt.Sprintf("%s %s does not match mandate currency %s", path, item.Currency, params.Currency),
				WithOffendingParam(path),
			)
		}
	}
	return PaymentMandate{
		MandateID:         uuid.NewString(),
		ShopperAgentID:    params.ShopperAgentID,
		MerchantAgentID:   params.MerchantAgentID,
		UserID:            params.UserID,
		LineItems:         slices.Clone(params.LineItems),
		Currency:          params.Currency,
		Status:            MandateStatusPending,
		CreatedAt:         now.UTC(),
		MerchantReference: params.MerchantReference,
		Description:       params.Description,
	}, nil
}

func (m *PaymentMandate) transition(next MandateStatus) error {
	if !m.Status.CanTransitionTo(next) {
		return NewInvalidTransitionError(fmt.Sprintf("mandate %s cannot move from %s to %s", m.MandateID, m.Status, next))
	}
	m.Status = next
	return nil
}

// Authorize records the user's authorization token. It is the only way a
// mandate obtains a token and succeeds at most once.
func (m *PaymentMandate) Authorize(token string, at time.Time) error {
	if token == "" {
		return NewValidationError("authorization_token is required", WithOffendingParam("authorization_token"))
	}
	if err := m.transition(MandateStatusAuthorized); err != nil {
		return err
	}
	ts := at.UTC()
	m.UserAuthorizationToken = token
	m.AuthorizationTimestamp = &ts
	return nil
}

// BeginProcessing moves an authorized mandate into processing.
func (m *PaymentMandate) BeginProcessing() error {
	return m.transition(MandateStatusProcessing)
}

// Complete finishes a mandate that is being processed.
func (m *PaymentMandate) Complete() error {
	return m.transition(MandateStatusCompleted)
}

// Fail terminates a non-terminal mandate with a reason.
func (m *PaymentMandate) Fail(reason string) error {
	if err := m.transition(MandateStatusFailed); err != nil {
		return err
	}
	m.FailureReason = reason
	return nil
}

// Cancel withdraws a mandate the user has not yet authorized.
func (m *PaymentMandate) Cancel() error {
	return m.transition(MandateStatusCancelled)
}
