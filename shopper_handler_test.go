package ap2

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumup/ap2/signature"
)

func TestShopperHandlerRoutes(t *testing.T) {
	t.Parallel()

	approved := true
	tests := map[string]struct {
		method     string
		path       string
		body       any
		setupStub  func(*stubShopper)
		wantStatus int
	}{
		"user preferences": {
			method: http.MethodGet,
			path:   "/user/preferences",
			setupStub: func(s *stubShopper) {
				s.preferences = func(ctx context.Context) (*UserPreferencesResult, error) {
					return &UserPreferencesResult{UserID: "user_12345"}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"payment methods": {
			method: http.MethodGet,
			path:   "/user/payment_methods",
			setupStub: func(s *stubShopper) {
				s.methods = func(ctx context.Context) (*PaymentMethodsResult, error) {
					return &PaymentMethodsResult{Status: ResultStatusSuccess}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"search merchant flights": {
			method: http.MethodPost,
			path:   "/flights/search",
			body:   MerchantSearchRequest{Origin: "SFO", Destination: "CDG", Date: "2025-11-15"},
			setupStub: func(s *stubShopper) {
				s.search = func(ctx context.Context, req MerchantSearchRequest) (*MerchantSearchResult, error) {
					return &MerchantSearchResult{Status: ResultStatusSuccess}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"initiate booking": {
			method: http.MethodPost,
			path:   "/bookings",
			body:   InitiateBookingRequest{FlightID: "FL001", PassengerName: "Ada"},
			setupStub: func(s *stubShopper) {
				s.initiate = func(ctx context.Context, req InitiateBookingRequest) (*InitiateBookingResult, error) {
					return &InitiateBookingResult{Status: ResultStatusMandateCreated}, nil
				}
			},
			wantStatus: http.StatusCreated,
		},
		"request authorization": {
			method: http.MethodPost,
			path:   "/authorizations",
			body: AuthorizationRequest{
				MandateID:    "md_123",
				MerchantName: "SkyHigh",
				Amount:       "$952.00",
				LineItems:    []string{"Flight FL001"},
			},
			setupStub: func(s *stubShopper) {
				s.request = func(ctx context.Context, req AuthorizationRequest) (*AuthorizationRequestResult, error) {
					return &AuthorizationRequestResult{Status: ResultStatusAuthorizationRequired}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"get authorization": {
			method: http.MethodGet,
			path:   "/authorizations/md_123",
			setupStub: func(s *stubShopper) {
				s.pending = func(ctx context.Context, id string) (PendingAuthorization, error) {
					return PendingAuthorization{MandateID: id, Status: AuthorizationStatusAuthorized, AuthorizationToken: "secret"}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"confirm payment": {
			method: http.MethodPost,
			path:   "/authorizations/md_123/confirm",
			body:   ConfirmPaymentRequest{Approved: &approved},
			setupStub: func(s *stubShopper) {
				s.confirm = func(ctx context.Context, id string, ok bool) (*ConfirmPaymentResult, error) {
					assert.True(t, ok, "expected approval")
					return &ConfirmPaymentResult{Status: AuthorizationStatusAuthorized}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"submit authorization": {
			method: http.MethodPost,
			path:   "/authorizations/md_123/submit",
			setupStub: func(s *stubShopper) {
				s.submit = func(ctx context.Context, id string) (*ProcessPaymentResult, error) {
					return &ProcessPaymentResult{Status: ResultStatusSuccess}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"extension": {
			method:     http.MethodGet,
			path:       "/.well-known/ap2-extension",
			wantStatus: http.StatusOK,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			stub := &stubShopper{}
			if tt.setupStub != nil {
				tt.setupStub(stub)
			}
			handler := NewShopperHandler(stub)
			var payload []byte
			if tt.body != nil {
				var err error
				payload, err = json.Marshal(tt.body)
				require.NoError(t, err)
			}
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader(payload))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "secret", "authorization token leaked")
		})
	}
}

func TestShopperHandlerConfirmRequiresDecision(t *testing.T) {
	t.Parallel()

	handler := NewShopperHandler(&stubShopper{})
	req := httptest.NewRequest(http.MethodPost, "/authorizations/md_123/confirm", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ValidationError, errorType(rec.Body.Bytes()))
}

func TestShopperHandlerConfirmUnknownMandate(t *testing.T) {
	t.Parallel()

	handler := NewShopperHandler(NewShopper(nil))
	req := httptest.NewRequest(http.MethodPost, "/authorizations/missing/confirm", strings.NewReader(`{"approved":true}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "No pending mandate found with ID missing")
}

func TestShopperHandlerWebhookRejectsMismatchedStatus(t *testing.T) {
	t.Parallel()

	shopper := NewShopper(nil)
	_, err := shopper.RequestUserAuthorization(context.Background(), sampleAuthorizationRequest("md_123"))
	require.NoError(t, err)
	handler := NewShopperHandler(shopper)

	body := `{"type":"mandate.completed","data":{"mandate_id":"md_123","status":"pending","occurred_at":"2025-10-01T09:00:00Z"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mandates", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, ValidationError, errorType(rec.Body.Bytes()))

	record, err := shopper.PendingAuthorization(context.Background(), "md_123")
	require.NoError(t, err)
	assert.Empty(t, record.MerchantStatus)
}

func TestShopperHandlerWebhook(t *testing.T) {
	t.Parallel()

	key := []byte("webhook-secret")
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	var (
		mu       sync.Mutex
		received []MandateEvent
	)
	stub := &stubShopper{
		event: func(ctx context.Context, event MandateEvent) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, event)
			return nil
		},
	}
	handler := NewShopperHandler(stub, WithWebhookVerifier(signature.HMAC{Key: key}), withClock(func() time.Time { return now }))
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	event, err := newMandateEvent(MandateEventCancelled, PaymentMandate{MandateID: "md_123", Status: MandateStatusCancelled}, nil, now)
	require.NoError(t, err)

	t.Run("signed event is accepted", func(t *testing.T) {
		notifier := &WebhookNotifier{
			Endpoint: server.URL + "/webhooks/mandates",
			Signer:   signature.HMAC{Key: key},
			Client:   server.Client(),
			Clock:    func() time.Time { return now },
		}
		require.NoError(t, notifier.NotifyMandate(context.Background(), event))
		mu.Lock()
		defer mu.Unlock()
		require.Len(t, received, 1)
		assert.Equal(t, MandateEventCancelled, received[0].Type)
	})

	t.Run("unsigned event is rejected", func(t *testing.T) {
		notifier := &WebhookNotifier{
			Endpoint: server.URL + "/webhooks/mandates",
			Client:   server.Client(),
		}
		assert.Error(t, notifier.NotifyMandate(context.Background(), event), "unsigned webhooks are rejected")
	})
}

type stubShopper struct {
	preferences func(ctx context.Context) (*UserPreferencesResult, error)
	methods     func(ctx context.Context) (*PaymentMethodsResult, error)
	search      func(ctx context.Context, req MerchantSearchRequest) (*MerchantSearchResult, error)
	initiate    func(ctx context.Context, req InitiateBookingRequest) (*InitiateBookingResult, error)
	request     func(ctx context.Context, req AuthorizationRequest) (*AuthorizationRequestResult, error)
	pending     func(ctx context.Context, id string) (PendingAuthorization, error)
	confirm     func(ctx context.Context, id string, approved bool) (*ConfirmPaymentResult, error)
	submit      func(ctx context.Context, id string) (*ProcessPaymentResult, error)
	event       func(ctx context.Context, event MandateEvent) error
}

func (s *stubShopper) GetUserPreferences(ctx context.Context) (*UserPreferencesResult, error) {
	if s.preferences == nil {
		return nil, NewProcessingError("preferences not implemented")
	}
	return s.preferences(ctx)
}

func (s *stubShopper) GetPaymentMethods(ctx context.Context) (*PaymentMethodsResult, error) {
	if s.methods == nil {
		return nil, NewProcessingError("payment methods not implemented")
	}
	return s.methods(ctx)
}

func (s *stubShopper) SearchMerchantFlights(ctx context.Context, req MerchantSearchRequest) (*MerchantSearchResult, error) {
	if s.search == nil {
		return nil, NewProcessingError("search not implemented")
	}
	return s.search(ctx, req)
}

func (s *stubShopper) InitiateBooking(ctx context.Context, req InitiateBookingRequest) (*InitiateBookingResult, error) {
	if s.initiate == nil {
		return nil, NewProcessingError("initiate not implemented")
	}
	return s.initiate(ctx, req)
}

func (s *stubShopper) RequestUserAuthorization(ctx context.Context, req AuthorizationRequest) (*AuthorizationRequestResult, error) {
	if s.request == nil {
		return nil, NewProcessingError("request not implemented")
	}
	return s.request(ctx, req)
}

func (s *stubShopper) PendingAuthorization(ctx context.Context, id string) (PendingAuthorization, error) {
	if s.pending == nil {
		return PendingAuthorization{}, NewProcessingError("pending not implemented")
	}
	return s.pending(ctx, id)
}

func (s *stubShopper) ConfirmPayment(ctx context.Context, id string, approved bool) (*ConfirmPaymentResult, error) {
	if s.confirm == nil {
		return nil, NewProcessingError("confirm not implemented")
	}
	return s.confirm(ctx, id, approved)
}

func (s *stubShopper) SubmitAuthorization(ctx context.Context, id string) (*ProcessPaymentResult, error) {
	if s.submit == nil {
		return nil, NewProcessingError("submit not implemented")
	}
	return s.submit(ctx, id)
}

func (s *stubShopper) HandleMandateEvent(ctx context.Context, event MandateEvent) error {
	if s.event == nil {
		return NewProcessingError("event not implemented")
	}
	return s.event(ctx, event)
}
