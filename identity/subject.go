// Package identity provides identity sources for the session manager: a
// fixed bearer, and a token file watched for sign-in and sign-out.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when a credential is requested but none is present.
var ErrNoToken = errors.New("identity: no token")

// Subject is a signed-in user with a fixed bearer credential.
type Subject struct {
	id    string
	token string
}

// NewSubject returns a Subject whose id is derived from token.
func NewSubject(token string) (*Subject, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}
	return &Subject{id: SubjectID(token), token: token}, nil
}

// ID implements session.Identity.
func (s *Subject) ID() string { return s.id }

// Token implements session.Identity.
func (s *Subject) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.token, nil
}

// SubjectID returns the "sub" claim of a JWT bearer. The signature is not
// checked here; the backend verifies it. Opaque tokens get a stable
// fingerprint instead.
func SubjectID(token string) string {
	if sub, err := JWTSubject(token); err == nil {
		return sub
	}
	sum := sha256.Sum256([]byte(token))
	return "token-" + hex.EncodeToString(sum[:8])
}

// JWTSubject extracts the "sub" claim without verifying the signature.
func JWTSubject(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("subject claim: %w", err)
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
