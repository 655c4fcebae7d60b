package ap2

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

// MerchantProvider is implemented by business logic that owns payment
// mandates. [*Merchant] is the reference implementation.
type MerchantProvider interface {
	SearchFlights(ctx context.Context, query FlightQuery) (*SearchFlightsResult, error)
	GetFlightDetails(ctx context.Context, flightID string) (*FlightDetailsResult, error)
	CreateBookingMandate(ctx context.Context, req CreateBookingMandateRequest) (*CreateBookingMandateResult, error)
	GetMandate(ctx context.Context, mandateID string) (*MandateResult, error)
	AuthorizeMandate(ctx context.Context, mandateID, token string) (*AuthorizeMandateResult, error)
	ProcessAuthorizedPayment(ctx context.Context, mandateID, token string) (*ProcessPaymentResult, error)
	CancelMandate(ctx context.Context, mandateID string) (*MandateResult, error)
	FailMandate(ctx context.Context, mandateID, reason string) (*MandateResult, error)
}

// MerchantHandler wires the merchant agent's tools to a [MerchantProvider].
type MerchantHandler struct {
	service   MerchantProvider
	mux       *http.ServeMux
	cfg       config
	extension Extension
}

// NewMerchantHandler builds a [MerchantHandler] backed by net/http's ServeMux.
func NewMerchantHandler(service MerchantProvider, opts ...Option) *MerchantHandler {
	if service == nil {
		panic("merchant: service is required")
	}
	cfg := newConfig(opts...)
	if cfg.requireSignedRequests && cfg.signatureVerifier == nil {
		panic("merchant: signature verifier required when signed requests are enforced")
	}
	extension, err := NewExtension(RoleMerchant)
	if err != nil {
		panic(err)
	}
	h := &MerchantHandler{
		service:   service,
		mux:       http.NewServeMux(),
		cfg:       cfg,
		extension: extension,
	}
	h.registerRoutes(cfg.middlewareChain()...)
	return h
}

// ServeHTTP satisfies http.Handler.
func (h *MerchantHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestCtx := requestContextFromRequest(r)
	ctx := contextWithRequestContext(r.Context(), requestCtx)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *MerchantHandler) registerRoutes(middleware ...Middleware) {
	h.mux.HandleFunc("GET /.well-known/ap2-extension", h.handleExtension)
	h.mux.HandleFunc("POST /flights/search", applyMiddleware(h.handleSearch, middleware...))
	h.mux.HandleFunc("GET /flights/{id}", applyMiddleware(h.handleFlight, middleware...))
	h.mux.HandleFunc("POST /mandates", applyMiddleware(h.handleCreateMandate, middleware...))
	h.mux.HandleFunc("GET /mandates/{id}", applyMiddleware(h.handleGetMandate, middleware...))
	h.mux.HandleFunc("POST /mandates/{id}/authorize", applyMiddleware(h.handleAuthorize, middleware...))
	h.mux.HandleFunc("POST /mandates/{id}/payment", applyMiddleware(h.handlePayment, middleware...))
	h.mux.HandleFunc("POST /mandates/{id}/cancel", applyMiddleware(h.handleCancel, middleware...))
	h.mux.HandleFunc("POST /mandates/{id}/fail", applyMiddleware(h.handleFail, middleware...))
}

func (h *MerchantHandler) handleExtension(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.extension)
}

func (h *MerchantHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query FlightQuery
	if !decodeRequest(w, r, &query) {
		return
	}
	result, err := h.service.SearchFlights(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MerchantHandler) handleFlight(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSONError(w, NewValidationError("flight_id is required", WithOffendingParam("flight_id")))
		return
	}
	result, err := h.service.GetFlightDetails(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MerchantHandler) handleCreateMandate(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingMandateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, NewValidationError(err.Error()))
		return
	}
	if req.ShopperAgentID == "" {
		if rc := RequestContextFromContext(r.Context()); rc != nil {
			req.ShopperAgentID = rc.AgentID
		}
	}
	if err := validateStruct(req); err != nil {
		writeServiceError(w, err)
		return
	}
	result, err := h.service.CreateBookingMandate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *MerchantHandler) handleGetMandate(w http.ResponseWriter, r *http.Request) {
	id, ok := mandateIDFromPath(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetMandate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MerchantHandler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	id, ok := mandateIDFromPath(w, r)
	if !ok {
		return
	}
	var req AuthorizationTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.service.AuthorizeMandate(r.Context(), id, req.AuthorizationToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MerchantHandler) handlePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := mandateIDFromPath(w, r)
	if !ok {
		return
	}
	var req AuthorizationTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.service.ProcessAuthorizedPayment(r.Context(), id, req.AuthorizationToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MerchantHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := mandateIDFromPath(w, r)
	if !ok {
		return
	}
	result, err := h.service.CancelMandate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MerchantHandler) handleFail(w http.ResponseWriter, r *http.Request) {
	id, ok := mandateIDFromPath(w, r)
	if !ok {
		return
	}
	var req FailMandateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.service.FailMandate(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *MerchantHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logServiceError(r.Context(), h.cfg.logger, r, err)
	writeServiceError(w, err)
}

func mandateIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeJSONError(w, NewValidationError("mandate_id is required", WithOffendingParam("mandate_id")))
		return "", false
	}
	return id, true
}

func logServiceError(ctx context.Context, logger *slog.Logger, r *http.Request, err error) {
	attrs := append([]any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	}, RequestContextFromContext(ctx).logAttrs()...)
	level := slog.LevelWarn
	var apErr *Error
	if !errors.As(err, &apErr) || apErr.HTTPStatus() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(ctx, level, "request failed", attrs...)
}
