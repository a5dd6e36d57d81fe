package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEnvelopeSignature is returned when an envelope's signature does not
// verify. Kept distinct from shape errors so callers can fail closed on
// signature problems specifically.
var ErrEnvelopeSignature = errors.New("token envelope signature verification failed")

// EnvelopeClaims is the JWT payload a delegation token travels in. The
// registered claims mirror the token's issuer, recipient, and expiry; the
// token itself rides in a private claim.
type EnvelopeClaims struct {
	jwt.RegisteredClaims
	Token *DelegationToken `json:"delegationToken"`
}

// EncodeEnvelope signs a delegation token into a compact JWS envelope using
// HMAC-SHA256. The secret comes from the key-custody provider; this package
// never manages key lifecycle.
func EncodeEnvelope(t *DelegationToken, secret []byte) (string, error) {
	if t == nil {
		return "", fmt.Errorf("cannot encode nil token")
	}

	claims := EnvelopeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        t.ID.String(),
			Issuer:    t.IssuerDID,
			Subject:   t.RecipientDID,
			IssuedAt:  jwt.NewNumericDate(t.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
		},
		Token: t,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token envelope: %w", err)
	}
	return signed, nil
}

// DecodeEnvelope verifies and opens a compact JWS envelope. Expiry is
// deliberately not enforced here: the chain verifier owns expiry semantics
// and must be able to inspect expired tokens to report EXPIRED_PARENT.
func DecodeEnvelope(envelope string, secret []byte) (*DelegationToken, error) {
	claims := &EnvelopeClaims{}
	parsed, err := jwt.ParseWithClaims(envelope, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeSignature, err)
	}
	if !parsed.Valid {
		return nil, ErrEnvelopeSignature
	}
	if claims.Token == nil {
		return nil, fmt.Errorf("envelope is missing the delegationToken claim")
	}
	return claims.Token, nil
}

// RefreshStatus derives the live status of a token at the given time without
// mutating stored state: an ACTIVE token past its expiry reads as EXPIRED.
func RefreshStatus(t *DelegationToken, now time.Time) Status {
	if t.Status == StatusActive && !now.Before(t.ExpiresAt) {
		return StatusExpired
	}
	return t.Status
}
