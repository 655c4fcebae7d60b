// Package signature signs and verifies AP2 payloads with HMAC-SHA256 over
// canonical JSON, so two agents serializing the same value independently
// produce the same signing input.
package signature

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

const (
	// HeaderSignature carries the base64url HMAC of the signing payload.
	HeaderSignature = "Signature"
	// HeaderTimestamp carries the RFC3339 signing time.
	HeaderTimestamp = "Timestamp"
)

// ErrInvalidSignature is returned when a MAC does not match its payload.
var ErrInvalidSignature = errors.New("signature: invalid signature")

// Material captures the inputs needed to validate a signed request.
type Material struct {
	Signature     string
	Timestamp     time.Time
	CanonicalBody []byte
	Method        string
	Path          string
	Headers       http.Header
}

// Verifier validates the authenticity of incoming requests.
type Verifier interface {
	Verify(ctx context.Context, material Material) error
}

// VerifierFunc lifts bare functions into [Verifier].
type VerifierFunc func(ctx context.Context, material Material) error

// Verify delegates to the wrapped function.
func (f VerifierFunc) Verify(ctx context.Context, material Material) error {
	return f(ctx, material)
}

// Signer produces the Signature header for outgoing requests.
type Signer interface {
	Sign(ts time.Time, canonicalBody []byte) (string, error)
}

// HMAC signs and verifies `RFC3339Nano(timestamp) + "." + canonicalJSON`
// with a shared key.
type HMAC struct {
	Key []byte
}

// Sign implements [Signer].
func (h HMAC) Sign(ts time.Time, canonicalBody []byte) (string, error) {
	if len(h.Key) == 0 {
		return "", errors.New("signature: HMAC requires a non-empty key")
	}
	return MAC(h.Key, BuildSigningPayload(ts, canonicalBody)), nil
}

// Verify implements [Verifier] by recomputing the expected MAC.
func (h HMAC) Verify(_ context.Context, material Material) error {
	if len(h.Key) == 0 {
		return errors.New("signature: HMAC requires a non-empty key")
	}
	return VerifyMAC(h.Key, BuildSigningPayload(material.Timestamp, material.CanonicalBody), material.Signature)
}

// MAC returns the base64url (unpadded) HMAC-SHA256 of payload.
func MAC(key, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyMAC checks sig against the HMAC-SHA256 of payload in constant time.
func VerifyMAC(key, payload []byte, sig string) error {
	decoded, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("signature: decode signature: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(payload)
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignRequest sets the Signature and Timestamp headers on an outgoing request
// whose body is body.
func SignRequest(req *http.Request, signer Signer, ts time.Time, body []byte) error {
	canonical, err := CanonicalizeJSONBody(body)
	if err != nil {
		return fmt.Errorf("signature: canonicalize body: %w", err)
	}
	sig, err := signer.Sign(ts, canonical)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderTimestamp, ts.UTC().Format(time.RFC3339Nano))
	return nil
}

// ReadAndBufferBody reads the request body while keeping it accessible for later handlers.
func ReadAndBufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		r.Body = io.NopCloser(bytes.NewReader(nil))
		return nil, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return raw, nil
}

// CanonicalizeJSONBody normalizes arbitrary JSON into canonical form for signing.
func CanonicalizeJSONBody(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("signature: multiple JSON documents in body")
	}
	return canonicaljson.Marshal(payload)
}

// Canonical marshals v and returns its canonical JSON form.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return CanonicalizeJSONBody(raw)
}

// ParseTimestamp accepts Timestamp header values in RFC3339 or RFC3339Nano format.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("signature: empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

// AbsDuration returns the absolute value of the supplied duration.
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// BuildSigningPayload constructs the canonical string that is HMAC-signed.
func BuildSigningPayload(ts time.Time, canonicalBody []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(ts.UTC().Format(time.RFC3339Nano))
	buf.WriteByte('.')
	buf.Write(canonicalBody)
	return buf.Bytes()
}
