package ap2

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sumup/ap2/signature"
)

// signaturePolicy describes how one route group checks request signatures.
type signaturePolicy struct {
	verifier      signature.Verifier
	requireSigned bool
	maxClockSkew  time.Duration
	clock         func() time.Time
}

// requestSignatures is the policy for agent-tool routes.
func (cfg config) requestSignatures() signaturePolicy {
	return signaturePolicy{
		verifier:      cfg.signatureVerifier,
		requireSigned: cfg.requireSignedRequests,
		maxClockSkew:  cfg.maxClockSkew,
		clock:         cfg.clock,
	}
}

// webhookSignatures is the policy for mandate events posted by a merchant.
// Once a webhook verifier is configured every event must be signed.
func (cfg config) webhookSignatures() signaturePolicy {
	return signaturePolicy{
		verifier:      cfg.webhookVerifier,
		requireSigned: true,
		maxClockSkew:  cfg.maxClockSkew,
		clock:         cfg.clock,
	}
}

// webhookChain returns the middleware guarding the mandate webhook route.
// Webhooks are merchant-to-shopper calls, so bearer authentication and custom
// middleware do not apply.
func (cfg config) webhookChain() []Middleware {
	if mw := cfg.webhookSignatures().middleware(); mw != nil {
		return []Middleware{mw}
	}
	return nil
}

// middleware returns nil when no verifier is configured.
func (p signaturePolicy) middleware() Middleware {
	if p.verifier == nil {
		return nil
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if apErr := p.verify(r); apErr != nil {
				writeJSONError(w, apErr)
				return
			}
			next(w, r)
		}
	}
}

// verify checks the Signature and Timestamp headers of r against its
// canonical JSON body. Unsigned requests pass unless signing is required.
func (p signaturePolicy) verify(r *http.Request) *Error {
	sig := strings.TrimSpace(r.Header.Get(signature.HeaderSignature))
	timestampHeader := strings.TrimSpace(r.Header.Get(signature.HeaderTimestamp))
	switch {
	case sig == "" && timestampHeader == "":
		if p.requireSigned {
			return NewUnauthorizedError("Signature and Timestamp headers are required")
		}
		return nil
	case sig == "":
		return NewValidationError("Signature and Timestamp headers must both be provided", WithOffendingParam(signature.HeaderSignature))
	case timestampHeader == "":
		return NewValidationError("Signature and Timestamp headers must both be provided", WithOffendingParam(signature.HeaderTimestamp))
	}

	ts, err := signature.ParseTimestamp(timestampHeader)
	if err != nil {
		return NewValidationError("Timestamp must be RFC3339", WithOffendingParam(signature.HeaderTimestamp))
	}
	ts = ts.UTC()
	if p.maxClockSkew > 0 && signature.AbsDuration(p.clock().Sub(ts)) > p.maxClockSkew {
		return NewUnauthorizedError(fmt.Sprintf("timestamp skew exceeds %s", p.maxClockSkew))
	}

	raw, err := signature.ReadAndBufferBody(r)
	if err != nil {
		return NewValidationError("unable to read request body")
	}
	canonicalBody, err := signature.CanonicalizeJSONBody(raw)
	if err != nil {
		return NewValidationError("request body must be valid JSON")
	}
	material := signature.Material{
		Signature:     sig,
		Timestamp:     ts,
		CanonicalBody: canonicalBody,
		Method:        r.Method,
		Path:          r.URL.Path,
		Headers:       r.Header.Clone(),
	}
	if err := p.verifier.Verify(r.Context(), material); err != nil {
		return NewUnauthorizedError("signature verification failed")
	}
	return nil
}
