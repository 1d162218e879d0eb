package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/B4xAbhishek/aqua-ai-answers/internal/devserver/respond"
)

var (
	// ErrMissingToken is returned when the Authorization header is absent.
	ErrMissingToken = errors.New("missing Authorization header")

	// ErrMalformedHeader is returned when the header is not "Bearer <token>".
	ErrMalformedHeader = errors.New("invalid Authorization header format, expected 'Bearer <token>'")

	// ErrInvalidToken is returned for tokens that fail signature, issuer or expiry checks.
	ErrInvalidToken = errors.New("invalid token")
)

// ExtractBearer extracts the bearer token from the Authorization header.
func ExtractBearer(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrMalformedHeader
	}

	return parts[1], nil
}

// TokenIssuer mints and checks HS256 identity tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns an issuer signing with secret. A non-positive ttl
// yields tokens without expiry.
func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token whose subject is sub.
func (ti *TokenIssuer) Issue(sub string) (string, error) {
	if strings.TrimSpace(sub) == "" {
		return "", errors.New("subject is required")
	}
	now := ti.now()
	claims := jwt.RegisteredClaims{
		Subject:  sub,
		Issuer:   ti.issuer,
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}
	if ti.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ti.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
}

// Verify checks the token and returns its subject.
func (ti *TokenIssuer) Verify(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(ti.now)}
	if ti.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ti.issuer))
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

type subjectKey struct{}

// SubjectFrom returns the authenticated subject stored by requireAuth.
func SubjectFrom(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok && sub != ""
}

// requireAuth rejects requests without a valid bearer token and stores
// the subject in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := ExtractBearer(r)
		if err != nil {
			respond.Unauthorized(w, err.Error())
			return
		}
		sub, err := s.tokens.Verify(raw)
		if err != nil {
			s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("token rejected")
			respond.Unauthorized(w, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, sub)))
	})
}
