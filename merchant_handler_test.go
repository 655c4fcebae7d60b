package ap2

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerchantHandlerRoutes(t *testing.T) {
	t.Parallel()

	mandate := PaymentMandate{
		MandateID:       "md_123",
		ShopperAgentID:  DefaultShopperAgentID,
		MerchantAgentID: DefaultMerchantAgentID,
		UserID:          "user_12345",
		Currency:        DefaultCurrency,
		Status:          MandateStatusPending,
	}

	tests := map[string]struct {
		method     string
		path       string
		body       any
		headers    map[string]string
		setupStub  func(*stubMerchant)
		wantStatus int
	}{
		"search flights": {
			method: http.MethodPost,
			path:   "/flights/search",
			body:   map[string]any{"origin": "SFO", "destination": "CDG"},
			setupStub: func(s *stubMerchant) {
				s.search = func(ctx context.Context, q FlightQuery) (*SearchFlightsResult, error) {
					assert.Equal(t, "SFO", q.Origin)
					assert.Equal(t, "CDG", q.Destination)
					return &SearchFlightsResult{Status: ResultStatusSuccess}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"flight details": {
			method: http.MethodGet,
			path:   "/flights/FL001",
			setupStub: func(s *stubMerchant) {
				s.details = func(ctx context.Context, id string) (*FlightDetailsResult, error) {
					assert.Equal(t, "FL001", id)
					return &FlightDetailsResult{Status: ResultStatusSuccess}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"create mandate": {
			method: http.MethodPost,
			path:   "/mandates",
			body: CreateBookingMandateRequest{
				FlightID:       "FL001",
				PassengerName:  "Ada",
				ShopperAgentID: DefaultShopperAgentID,
				UserID:         "user_12345",
			},
			setupStub: func(s *stubMerchant) {
				s.create = func(ctx context.Context, req CreateBookingMandateRequest) (*CreateBookingMandateResult, error) {
					return &CreateBookingMandateResult{Status: ResultStatusSuccess, MandateID: "md_123"}, nil
				}
			},
			wantStatus: http.StatusCreated,
		},
		"create mandate takes shopper id from header": {
			method:  http.MethodPost,
			path:    "/mandates",
			body:    map[string]string{"flight_id": "FL001", "passenger_name": "Ada", "user_id": "user_12345"},
			headers: map[string]string{HeaderAgentID: "header_agent"},
			setupStub: func(s *stubMerchant) {
				s.create = func(ctx context.Context, req CreateBookingMandateRequest) (*CreateBookingMandateResult, error) {
					assert.Equal(t, "header_agent", req.ShopperAgentID)
					return &CreateBookingMandateResult{Status: ResultStatusSuccess}, nil
				}
			},
			wantStatus: http.StatusCreated,
		},
		"get mandate": {
			method: http.MethodGet,
			path:   "/mandates/md_123",
			setupStub: func(s *stubMerchant) {
				s.get = func(ctx context.Context, id string) (*MandateResult, error) {
					return &MandateResult{Status: ResultStatusSuccess, Mandate: mandate}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"authorize mandate": {
			method: http.MethodPost,
			path:   "/mandates/md_123/authorize",
			body:   AuthorizationTokenRequest{AuthorizationToken: "tok"},
			setupStub: func(s *stubMerchant) {
				s.authorize = func(ctx context.Context, id, token string) (*AuthorizeMandateResult, error) {
					assert.Equal(t, "md_123", id)
					assert.Equal(t, "tok", token)
					return &AuthorizeMandateResult{Status: ResultStatusSuccess, MandateStatus: MandateStatusAuthorized}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"process payment": {
			method: http.MethodPost,
			path:   "/mandates/md_123/payment",
			body:   AuthorizationTokenRequest{AuthorizationToken: "tok"},
			setupStub: func(s *stubMerchant) {
				s.process = func(ctx context.Context, id, token string) (*ProcessPaymentResult, error) {
					return &ProcessPaymentResult{Status: ResultStatusSuccess}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"cancel mandate": {
			method: http.MethodPost,
			path:   "/mandates/md_123/cancel",
			setupStub: func(s *stubMerchant) {
				s.cancel = func(ctx context.Context, id string) (*MandateResult, error) {
					return &MandateResult{Status: ResultStatusSuccess, Mandate: mandate}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		"fail mandate": {
			method: http.MethodPost,
			path:   "/mandates/md_123/fail",
			body:   FailMandateRequest{Reason: "card declined"},
			setupStub: func(s *stubMerchant) {
				s.fail = func(ctx context.Context, id, reason string) (*MandateResult, error) {
					assert.Equal(t, "card declined", reason)
					return &MandateResult{Status: ResultStatusSuccess, Mandate: mandate}, nil
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

			stub := &stubMerchant{}
			if tt.setupStub != nil {
				tt.setupStub(stub)
			}
			handler := NewMerchantHandler(stub)
			var payload []byte
			if tt.body != nil {
				var err error
				payload, err = json.Marshal(tt.body)
				require.NoError(t, err)
			}
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader(payload))
			if tt.body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, ProtocolVersion, rec.Header().Get(HeaderVersion))
		})
	}
}

func TestMerchantHandlerErrors(t *testing.T) {
	t.Parallel()

	t.Run("invalid JSON", func(t *testing.T) {
		handler := NewMerchantHandler(&stubMerchant{})
		req := httptest.NewRequest(http.MethodPost, "/mandates", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, ValidationError, errorType(rec.Body.Bytes()))
	})

	t.Run("missing required field", func(t *testing.T) {
		handler := NewMerchantHandler(&stubMerchant{})
		req := httptest.NewRequest(http.MethodPost, "/mandates/md_123/authorize", strings.NewReader(`{"authorization_token":""}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var payload Error
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		require.NotNil(t, payload.Param)
		assert.Equal(t, "authorization_token", *payload.Param)
	})

	t.Run("service error surfaces", func(t *testing.T) {
		handler := NewMerchantHandler(&stubMerchant{
			get: func(ctx context.Context, id string) (*MandateResult, error) {
				return nil, NewNotFoundError("Mandate unknown not found")
			},
		})
		req := httptest.NewRequest(http.MethodGet, "/mandates/unknown", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"error"`)
	})

	t.Run("invalid transition is a conflict", func(t *testing.T) {
		handler := NewMerchantHandler(&stubMerchant{
			process: func(ctx context.Context, id, token string) (*ProcessPaymentResult, error) {
				return nil, NewInvalidTransitionError("Mandate is not authorized (status: pending)")
			},
		})
		req := httptest.NewRequest(http.MethodPost, "/mandates/md_123/payment", strings.NewReader(`{"authorization_token":"tok"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, InvalidTransition, errorType(rec.Body.Bytes()))
	})

	t.Run("method not allowed", func(t *testing.T) {
		handler := NewMerchantHandler(&stubMerchant{})
		req := httptest.NewRequest(http.MethodGet, "/mandates", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestMerchantHandlerEndToEnd(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	merchant := NewMerchant(NewStaticCatalog(DefaultFlights()), WithMerchantClock(func() time.Time { return now }))
	server := httptest.NewServer(NewMerchantHandler(merchant))
	t.Cleanup(server.Close)

	client, err := NewMerchantClient(server.URL, WithClientAgentID(DefaultShopperAgentID))
	require.NoError(t, err)
	shopper := NewShopper(client, WithShopperClock(func() time.Time { return now }))
	ctx := context.Background()

	booking, err := shopper.InitiateBooking(ctx, InitiateBookingRequest{FlightID: "FL001", PassengerName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "$952.00", booking.Payment.Total)
	_, err = shopper.RequestUserAuthorization(ctx, AuthorizationRequest{
		MandateID:    booking.MandateID,
		MerchantName: booking.Merchant,
		Amount:       booking.Payment.Total,
		LineItems:    booking.LineItems,
	})
	require.NoError(t, err)
	_, err = shopper.ConfirmPayment(ctx, booking.MandateID, true)
	require.NoError(t, err)
	receipt, err := shopper.SubmitAuthorization(ctx, booking.MandateID)
	require.NoError(t, err)
	assert.Equal(t, string(MandateStatusCompleted), receipt.Booking.PaymentStatus)

	_, err = client.ProcessAuthorizedPayment(ctx, booking.MandateID, "replayed")
	assert.True(t, IsErrorType(err, InvalidTransition), "got %v", err)

	ext, err := client.Extension(ctx)
	require.NoError(t, err)
	assert.True(t, ext.Supports(RoleMerchant))
}

func errorType(body []byte) ErrorType {
	var resp Error
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Type
}

type stubMerchant struct {
	search    func(ctx context.Context, q FlightQuery) (*SearchFlightsResult, error)
	details   func(ctx context.Context, id string) (*FlightDetailsResult, error)
	create    func(ctx context.Context, req CreateBookingMandateRequest) (*CreateBookingMandateResult, error)
	get       func(ctx context.Context, id string) (*MandateResult, error)
	authorize func(ctx context.Context, id, token string) (*AuthorizeMandateResult, error)
	process   func(ctx context.Context, id, token string) (*ProcessPaymentResult, error)
	cancel    func(ctx context.Context, id string) (*MandateResult, error)
	fail      func(ctx context.Context, id, reason string) (*MandateResult, error)
}

func (s *stubMerchant) SearchFlights(ctx context.Context, q FlightQuery) (*SearchFlightsResult, error) {
	if s.search == nil {
		return nil, NewProcessingError("search not implemented")
	}
	return s.search(ctx, q)
}

func (s *stubMerchant) GetFlightDetails(ctx context.Context, id string) (*FlightDetailsResult, error) {
	if s.details == nil {
		return nil, NewProcessingError("details not implemented")
	}
	return s.details(ctx, id)
}

func (s *stubMerchant) CreateBookingMandate(ctx context.Context, req CreateBookingMandateRequest) (*CreateBookingMandateResult, error) {
	if s.create == nil {
		return nil, NewProcessingError("create not implemented")
	}
	return s.create(ctx, req)
}

func (s *stubMerchant) GetMandate(ctx context.Context, id string) (*MandateResult, error) {
	if s.get == nil {
		return nil, NewProcessingError("get not implemented")
	}
	return s.get(ctx, id)
}

func (s *stubMerchant) AuthorizeMandate(ctx context.Context, id, token string) (*AuthorizeMandateResult, error) {
	if s.authorize == nil {
		return nil, NewProcessingError("authorize not implemented")
	}
	return s.authorize(ctx, id, token)
}

func (s *stubMerchant) ProcessAuthorizedPayment(ctx context.Context, id, token string) (*ProcessPaymentResult, error) {
	if s.process == nil {
		return nil, NewProcessingError("process not implemented")
	}
	return s.process(ctx, id, token)
}

func (s *stubMerchant) CancelMandate(ctx context.Context, id string) (*MandateResult, error) {
	if s.cancel == nil {
		return nil, NewProcessingError("cancel not implemented")
	}
	return s.cancel(ctx, id)
}

func (s *stubMerchant) FailMandate(ctx context.Context, id, reason string) (*MandateResult, error) {
	if s.fail == nil {
		return nil, NewProcessingError("fail not implemented")
	}
	return s.fail(ctx, id, reason)
}
