package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rzbill/tokenvault/pkg/types"
)

// tokenClaims is the JWT body. username and application keep the field
// names used by tokens already stored in existing deployments.
type tokenClaims struct {
	Username    string `json:"username"`
	Application bool   `json:"application"`
	jwt.RegisteredClaims
}

// Signer signs and verifies tokens with a shared HMAC secret (HS256).
// The key is fixed for the lifetime of the Signer; rotating it invalidates
// every outstanding token.
type Signer struct {
	key []byte
	now func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a Signer for the given secret.
func NewSigner(secret []byte, opts ...SignerOption) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token signing secret is required")
	}
	s := &Signer{key: append([]byte(nil), secret...), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign issues a token for payload. expiresIn <= 0 produces a token without
// an exp claim. Every call yields a distinct string, even for identical
// payloads signed within the same second.
func (s *Signer) Sign(payload types.TokenPayload, expiresIn time.Duration) (string, error) {
	if payload.Username == "" {
		return "", fmt.Errorf("%w: username is required", types.ErrInvalidToken)
	}
	now := s.now()
	claims := tokenClaims{
		Username:    payload.Username,
		Application: payload.Application,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if expiresIn > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiresIn))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its payload.
// It fails with types.ErrInvalidToken for anything we did not sign or cannot
// decode, and with types.ErrExpiredToken for a genuine but expired token.
func (s *Signer) Verify(token string) (*types.TokenPayload, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", types.ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidToken, err)
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("%w: missing username", types.ErrInvalidToken)
	}

	payload := &types.TokenPayload{
		Username:    claims.Username,
		Application: claims.Application,
	}
	if claims.IssuedAt != nil {
		t := claims.IssuedAt.Time
		payload.IssuedAt = &t
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		payload.ExpiresAt = &t
	}
	return payload, nil
}
