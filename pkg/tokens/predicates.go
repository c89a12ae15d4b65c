package tokens

import (
	"time"

	"github.com/rzbill/tokenvault/pkg/types"
)

// Predicate selects tokens for BatchRevoke.
type Predicate func(payload types.TokenPayload) bool

// All selects every token.
func All() Predicate {
	return func(types.TokenPayload) bool { return true }
}

// UserTokensOnly selects tokens issued to a person.
func UserTokensOnly() Predicate {
	return func(p types.TokenPayload) bool { return !p.Application }
}

// ApplicationTokensOnly selects application tokens.
func ApplicationTokensOnly() Predicate {
	return func(p types.TokenPayload) bool { return p.Application }
}

// IssuedBefore selects tokens issued strictly before t. Tokens without an
// issue time are treated as issued at the epoch.
func IssuedBefore(t time.Time) Predicate {
	return func(p types.TokenPayload) bool {
		if p.IssuedAt == nil {
			return true
		}
		return p.IssuedAt.Before(t)
	}
}

// And selects tokens matched by every predicate.
func And(preds ...Predicate) Predicate {
	return func(p types.TokenPayload) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}
}
