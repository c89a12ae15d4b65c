package types

import "time"

// TokenPayload is the decoded content of a signed token.
type TokenPayload struct {
	Username    string     `json:"username" yaml:"username"`
	Application bool       `json:"application" yaml:"application"`
	IssuedAt    *time.Time `json:"issuedAt,omitempty" yaml:"issuedAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// Expires reports whether the token carries an expiry.
func (p *TokenPayload) Expires() bool {
	return p.ExpiresAt != nil
}

// TokenRecord is one entry of a user's token object: a random id mapped to
// the signed token string. It is not persisted on its own.
type TokenRecord struct {
	ID    string `json:"id" yaml:"id"`
	Token string `json:"token" yaml:"token"`
}
