// Package token mints and verifies the HS256 bearer tokens accepted by the agent API.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/vai-agent-server/internal/errors"
)

// HMACSigner signs and verifies tokens with a shared secret (HMAC-SHA256).
type HMACSigner struct {
	secret []byte
	issuer string
}

// NewHMACSigner creates a new HMAC signer with the given secret. An empty issuer
// disables the iss claim and its check.
func NewHMACSigner(secret, issuer string) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	if len(h.secret) == 0 {
		return "", errors.MissingConfig("JWT_SECRET")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrapf(err, "[HMACSigner Sign] failed to sign token")
	}
	return signedToken, nil
}

// Issue signs a token for subject that expires after ttl.
func (h *HMACSigner) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}
	if h.issuer != "" {
		claims["iss"] = h.issuer
	}
	return h.Sign(claims)
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

// Verify parses rawToken, checks its signature and expiry and returns its claims.
func (h *HMACSigner) Verify(rawToken string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, h.GetVerificationKey, opts...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "[HMACSigner Verify] %v", err)
	}
	if !token.Valid {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "[HMACSigner Verify] invalid token")
	}
	return claims, nil
}
