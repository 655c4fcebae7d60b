package ap2

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// HeaderVersion is set on every response and outgoing request.
const HeaderVersion = "AP2-Version"

func decodeJSON(body io.ReadCloser, v any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// decodeRequest decodes and validates a JSON request body, writing the
// failure response itself. It reports whether the handler should continue.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r.Body, v); err != nil {
		writeJSONError(w, NewValidationError(err.Error()))
		return false
	}
	if err := validateStruct(v); err != nil {
		writeServiceError(w, err)
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	var apErr *Error
	if errors.As(err, &apErr) {
		writeJSONError(w, apErr)
		return
	}
	writeJSONError(w, NewProcessingError("internal server error"))
}

func writeJSONError(w http.ResponseWriter, payload *Error) {
	if payload == nil {
		payload = NewProcessingError("internal server error")
	}
	writeJSON(w, payload.HTTPStatus(), payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderVersion, ProtocolVersion)
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
