package ap2

import (
	"context"
	"net/http"
)

// ShopperProvider is implemented by the user-side agent. [*Shopper] is the
// reference implementation.
type ShopperProvider interface {
	GetUserPreferences(ctx context.Context) (*UserPreferencesResult, error)
	GetPaymentMethods(ctx context.Context) (*PaymentMethodsResult, error)
	SearchMerchantFlights(ctx context.Context, req MerchantSearchRequest) (*MerchantSearchResult, error)
	InitiateBooking(ctx context.Context, req InitiateBookingRequest) (*InitiateBookingResult, error)
	RequestUserAuthorization(ctx context.Context, req AuthorizationRequest) (*AuthorizationRequestResult, error)
	PendingAuthorization(ctx context.Context, mandateID string) (PendingAuthorization, error)
	ConfirmPayment(ctx context.Context, mandateID string, approved bool) (*ConfirmPaymentResult, error)
	SubmitAuthorization(ctx context.Context, mandateID string) (*ProcessPaymentResult, error)
	HandleMandateEvent(ctx context.Context, event MandateEvent) error
}

// ShopperHandler exposes the shopper agent's tools over net/http. Mandate
// webhooks are checked with the verifier from [WithWebhookVerifier] instead
// of the bearer authenticator.
type ShopperHandler struct {
	service   ShopperProvider
	mux       *http.ServeMux
	cfg       config
	extension Extension
}

// NewShopperHandler wires the shopper routes to the provided [ShopperProvider].
func NewShopperHandler(service ShopperProvider, opts ...Option) *ShopperHandler {
	if service == nil {
		panic("shopper: service is required")
	}
	cfg := newConfig(opts...)
	if cfg.requireSignedRequests && cfg.signatureVerifier == nil {
		panic("shopper: signature verifier required when signed requests are enforced")
	}
	extension, err := NewExtension(RoleShopper)
	if err != nil {
		panic(err)
	}
	h := &ShopperHandler{
		service:   service,
		mux:       http.NewServeMux(),
		cfg:       cfg,
		extension: extension,
	}
	h.registerRoutes(cfg.middlewareChain()...)
	return h
}

// ServeHTTP satisfies http.Handler.
func (h *ShopperHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestCtx := requestContextFromRequest(r)
	ctx := contextWithRequestContext(r.Context(), requestCtx)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *ShopperHandler) registerRoutes(middleware ...Middleware) {
	h.mux.HandleFunc("GET /.well-known/ap2-extension", h.handleExtension)
	h.mux.HandleFunc("GET /user/preferences", applyMiddleware(h.handlePreferences, middleware...))
	h.mux.HandleFunc("GET /user/payment_methods", applyMiddleware(h.handlePaymentMethods, middleware...))
	h.mux.HandleFunc("POST /flights/search", applyMiddleware(h.handleSearch, middleware...))
	h.mux.HandleFunc("POST /bookings", applyMiddleware(h.handleInitiateBooking, middleware...))
	h.mux.HandleFunc("POST /authorizations", applyMiddleware(h.handleRequestAuthorization, middleware...))
	h.mux.HandleFunc("GET /authorizations/{id}", applyMiddleware(h.handleGetAuthorization, middleware...))
	h.mux.HandleFunc("POST /authorizations/{id}/confirm", applyMiddleware(h.handleConfirm, middleware...))
	h.mux.HandleFunc("POST /authorizations/{id}/submit", applyMiddleware(h.handleSubmit, middleware...))
	h.mux.HandleFunc("POST /webhooks/mandates", applyMiddleware(h.handleMandateEvent, h.cfg.webhookChain()...))
}

func (h *ShopperHandler) handleExtension(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.extension)
}

func (h *ShopperHandler) handlePreferences(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetUserPreferences(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ShopperHandler) handlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetPaymentMethods(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ShopperHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req MerchantSearchRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.service.SearchMerchantFlights(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ShopperHandler) handleInitiateBooking(w http.ResponseWriter, r *http.Request) {
	var req InitiateBookingRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.service.InitiateBooking(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *ShopperHandler) handleRequestAuthorization(w http.ResponseWriter, r *http.Request) {
	var req AuthorizationRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.service.RequestUserAuthorization(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ShopperHandler) handleGetAuthorization(w http.ResponseWriter, r *http.Request) {
	id, ok := mandateIDFromPath(w, r)
	if !ok {
		return
	}
	record, err := h.service.PendingAuthorization(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// The token is only ever handed out by confirm.
	record.AuthorizationToken = ""
	writeJSON(w, http.StatusOK, record)
}

func (h *ShopperHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := mandateIDFromPath(w, r)
	if !ok {
		return
	}
	var req ConfirmPaymentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Approved == nil {
		writeJSONError(w, NewValidationError("approved is required", WithOffendingParam("approved")))
		return
	}
	result, err := h.service.ConfirmPayment(r.Context(), id, *req.Approved)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ShopperHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := mandateIDFromPath(w, r)
	if !ok {
		return
	}
	result, err := h.service.SubmitAuthorization(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ShopperHandler) handleMandateEvent(w http.ResponseWriter, r *http.Request) {
	var event MandateEvent
	if !decodeRequest(w, r, &event) {
		return
	}
	if err := h.service.HandleMandateEvent(r.Context(), event); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set(HeaderVersion, ProtocolVersion)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShopperHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logServiceError(r.Context(), h.cfg.logger, r, err)
	writeServiceError(w, err)
}
