package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/vai-agent-server/internal/cryptoutil"
	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/rs/zerolog"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySubject stores the authenticated caller
	ContextKeySubject ContextKey = "subject"
	// ContextKeyClaims stores parsed token claims
	ContextKeyClaims ContextKey = "claims"

	headerAPIKey = "X-API-Key"

	subjectAPIKey = "api-key"
)

// SubjectFromContext returns the caller identified by RequireAuth.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}

// RequireAuth accepts either an X-API-Key matching the configured bcrypt hash or a
// Bearer token signed with JWT_SECRET (HS256, see the token package) or issued by the configured OIDC issuer.
// With none of these configured every request passes.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !s.authEnabled() {
				next(w, r)
				return
			}

			if apiKey := r.Header.Get(headerAPIKey); apiKey != "" && s.apiKeyHash != "" {
				if !cryptoutil.CompareHash(apiKey, s.apiKeyHash) {
					writeError(w, r, errors.Wrapf(errors.ErrUnauthorized, "invalid API key"))
					return
				}
				next(w, r.WithContext(context.WithValue(r.Context(), ContextKeySubject, subjectAPIKey)))
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				writeError(w, r, err)
				return
			}

			claims, err := s.verifyToken(r.Context(), token)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Token verification failed")
				writeError(w, r, errors.Wrapf(errors.ErrUnauthorized, "invalid token"))
				return
			}

			subject, _ := claims["sub"].(string)
			ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.Wrapf(errors.ErrUnauthorized, "missing Authorization header")
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errors.Wrapf(errors.ErrUnauthorized, "invalid Authorization header format")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.Wrapf(errors.ErrUnauthorized, "empty token")
	}
	return token, nil
}

// verifyToken tries the shared secret first, then the OIDC issuer.
func (s *Server) verifyToken(ctx context.Context, rawToken string) (jwt.MapClaims, error) {
	var lastErr error = errors.ErrUnauthorized
	if s.signer != nil {
		claims, err := s.signer.Verify(rawToken)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}

	if s.oidcVerifier != nil {
		idToken, err := s.oidcVerifier.Verify(ctx, rawToken)
		if err != nil {
			return nil, err
		}
		claims := jwt.MapClaims{}
		if err := idToken.Claims(&claims); err != nil {
			return nil, err
		}
		return claims, nil
	}
	return nil, lastErr
}
