package ap2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sumup/ap2/signature"
)

// TokenClaims identify the authorization a token stands for.
type TokenClaims struct {
	MandateID string
	UserID    string
	IssuedAt  time.Time
}

// TokenIssuer derives the authorization token handed to the merchant after
// the user approves a mandate.
type TokenIssuer interface {
	Issue(claims TokenClaims) (string, error)
}

// TokenVerifier lets the merchant check a presented token against its own
// mandate record.
type TokenVerifier interface {
	Verify(ctx context.Context, mandate PaymentMandate, token string) error
}

// TokenVerifierFunc lifts bare functions into [TokenVerifier].
type TokenVerifierFunc func(ctx context.Context, mandate PaymentMandate, token string) error

// Verify delegates to the wrapped function.
func (f TokenVerifierFunc) Verify(ctx context.Context, mandate PaymentMandate, token string) error {
	return f(ctx, mandate, token)
}

// DigestTokenIssuer is the reference AP2 token: the first 32 hex characters
// of SHA-256("{mandate_id}:{user_id}:{unix seconds with microseconds}").
// The inputs are guessable, so the token proves uniqueness, not intent. Use
// [SignedTokenIssuer] when the merchant must be able to check the token.
type DigestTokenIssuer struct{}

// Issue implements [TokenIssuer].
func (DigestTokenIssuer) Issue(c TokenClaims) (string, error) {
	data := fmt.Sprintf("%s:%s:%s", c.MandateID, c.UserID, unixSeconds(c.IssuedAt))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:32], nil
}

func unixSeconds(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/int(time.Microsecond))
}

// SignedTokenIssuer produces "<unix>.<mac>" tokens where mac is the HMAC of
// the canonical JSON claims under a key the user shares with the merchant.
type SignedTokenIssuer struct {
	Key []byte
}

type signedClaims struct {
	MandateID string `json:"mandate_id"`
	UserID    string `json:"user_id"`
	IssuedAt  int64  `json:"issued_at"`
}

func signingInput(c signedClaims) ([]byte, error) {
	return signature.Canonical(c)
}

// Issue implements [TokenIssuer].
func (s SignedTokenIssuer) Issue(c TokenClaims) (string, error) {
	if len(s.Key) == 0 {
		return "", errors.New("ap2: signed token issuer requires a key")
	}
	claims := signedClaims{MandateID: c.MandateID, UserID: c.UserID, IssuedAt: c.IssuedAt.Unix()}
	payload, err := signingInput(claims)
	if err != nil {
		return "", fmt.Errorf("ap2: canonicalize token claims: %w", err)
	}
	return strconv.FormatInt(claims.IssuedAt, 10) + "." + signature.MAC(s.Key, payload), nil
}

// SignedTokenVerifier checks tokens from [SignedTokenIssuer] against the
// mandate's id and user. A positive MaxAge bounds how old a token may be
// relative to Clock.
type SignedTokenVerifier struct {
	Key    []byte
	MaxAge time.Duration
	Clock  func() time.Time
}

// Verify implements [TokenVerifier].
func (v SignedTokenVerifier) Verify(_ context.Context, mandate PaymentMandate, token string) error {
	rawTS, sig, ok := strings.Cut(token, ".")
	if !ok || sig == "" {
		return NewUnauthorizedError("authorization token is malformed", WithOffendingParam("authorization_token"))
	}
	issuedAt, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return NewUnauthorizedError("authorization token is malformed", WithOffendingParam("authorization_token"))
	}
	if v.MaxAge > 0 {
		clock := v.Clock
		if clock == nil {
			clock = time.Now
		}
		if clock().Sub(time.Unix(issuedAt, 0)) > v.MaxAge {
			return NewUnauthorizedError("authorization token expired", WithOffendingParam("authorization_token"))
		}
	}
	payload, err := signingInput(signedClaims{MandateID: mandate.MandateID, UserID: mandate.UserID, IssuedAt: issuedAt})
	if err != nil {
		return NewProcessingError(err.Error())
	}
	if err := signature.VerifyMAC(v.Key, payload, sig); err != nil {
		return NewUnauthorizedError("authorization token does not match mandate", WithOffendingParam("authorization_token"))
	}
	return nil
}
