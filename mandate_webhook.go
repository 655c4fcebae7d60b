package ap2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/sumup/ap2/signature"
)

// MandateEventType enumerates the lifecycle events a merchant publishes.
type MandateEventType string

const (
	MandateEventAuthorized MandateEventType = "mandate.authorized"
	MandateEventCompleted  MandateEventType = "mandate.completed"
	MandateEventFailed     MandateEventType = "mandate.failed"
	MandateEventCancelled  MandateEventType = "mandate.cancelled"
)

var mandateEventStatus = map[MandateEventType]MandateStatus{
	MandateEventAuthorized: MandateStatusAuthorized,
	MandateEventCompleted:  MandateStatusCompleted,
	MandateEventFailed:     MandateStatusFailed,
	MandateEventCancelled:  MandateStatusCancelled,
}

// Status returns the mandate status an event of type t reports.
func (t MandateEventType) Status() (MandateStatus, bool) {
	s, ok := mandateEventStatus[t]
	return s, ok
}

// MandateNotifier delivers mandate events to the shopper role.
type MandateNotifier interface {
	NotifyMandate(ctx context.Context, event MandateEvent) error
}

// MandateNotifierFunc lifts bare functions into [MandateNotifier].
type MandateNotifierFunc func(ctx context.Context, event MandateEvent) error

// NotifyMandate delegates to the wrapped function.
func (f MandateNotifierFunc) NotifyMandate(ctx context.Context, event MandateEvent) error {
	return f(ctx, event)
}

// MandateEvent is the webhook envelope posted by the merchant.
type MandateEvent struct {
	Type MandateEventType `json:"type" validate:"required,oneof=mandate.authorized mandate.completed mandate.failed mandate.cancelled"`
	Data MandateEventData `json:"data"`
}

// MandateEventData holds a status change, optionally merged with the booking
// confirmation for completed mandates.
type MandateEventData struct {
	union json.RawMessage
}

// MandateStatusChange reports the merchant-side status of a mandate.
type MandateStatusChange struct {
	MandateID  string        `json:"mandate_id"`
	Status     MandateStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// BookingConfirmed accompanies completed mandates.
type BookingConfirmed struct {
	MandateID        string `json:"mandate_id"`
	BookingID        string `json:"booking_id"`
	ConfirmationCode string `json:"confirmation_code"`
	AmountCharged    string `json:"amount_charged"`
}

func newMandateEvent(typ MandateEventType, mandate PaymentMandate, booking *BookingConfirmation, now time.Time) (MandateEvent, error) {
	event := MandateEvent{Type: typ}
	if err := event.Data.FromMandateStatusChange(MandateStatusChange{
		MandateID:  mandate.MandateID,
		Status:     mandate.Status,
		Reason:     mandate.FailureReason,
		OccurredAt: now.UTC(),
	}); err != nil {
		return MandateEvent{}, err
	}
	if booking != nil {
		if err := event.Data.MergeBookingConfirmed(BookingConfirmed{
			MandateID:        mandate.MandateID,
			BookingID:        booking.BookingID,
			ConfirmationCode: booking.ConfirmationCode,
			AmountCharged:    booking.AmountCharged,
		}); err != nil {
			return MandateEvent{}, err
		}
	}
	return event, nil
}

// AsMandateStatusChange returns the union data as a MandateStatusChange.
func (t MandateEventData) AsMandateStatusChange() (MandateStatusChange, error) {
	var body MandateStatusChange
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// FromMandateStatusChange overwrites the union data with v.
func (t *MandateEventData) FromMandateStatusChange(v MandateStatusChange) error {
	b, err := json.Marshal(v)
	t.union = b
	return err
}

// AsBookingConfirmed returns the union data as a BookingConfirmed.
func (t MandateEventData) AsBookingConfirmed() (BookingConfirmed, error) {
	var body BookingConfirmed
	err := json.Unmarshal(t.union, &body)
	return body, err
}

// MergeBookingConfirmed merges v into the union data.
func (t *MandateEventData) MergeBookingConfirmed(v BookingConfirmed) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	merged, err := runtime.JSONMerge(t.union, b)
	t.union = merged
	return err
}

// MarshalJSON serializes the underlying union.
func (t MandateEventData) MarshalJSON() ([]byte, error) {
	if len(t.union) == 0 {
		return []byte("null"), nil
	}
	return t.union.MarshalJSON()
}

// UnmarshalJSON loads union data.
func (t *MandateEventData) UnmarshalJSON(b []byte) error {
	return t.union.UnmarshalJSON(b)
}

// WebhookNotifier posts mandate events as signed JSON to the shopper's
// webhook endpoint.
type WebhookNotifier struct {
	Endpoint string
	Signer   signature.Signer
	Client   *http.Client
	Clock    func() time.Time
}

// NotifyMandate implements [MandateNotifier].
func (n *WebhookNotifier) NotifyMandate(ctx context.Context, event MandateEvent) error {
	if n == nil || n.Endpoint == "" {
		return errors.New("ap2: webhook endpoint must be configured")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ap2: marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ap2: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderVersion, ProtocolVersion)
	if n.Signer != nil {
		clock := n.Clock
		if clock == nil {
			clock = time.Now
		}
		if err := signature.SignRequest(req, n.Signer, clock(), body); err != nil {
			return fmt.Errorf("ap2: sign webhook: %w", err)
		}
	}

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ap2: send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ap2: webhook endpoint %s returned %s: %s", n.Endpoint, resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}
