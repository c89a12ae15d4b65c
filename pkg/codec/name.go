package codec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// NameEncoding maps business names (e.g. usernames) to names the backing
// store accepts. Writes and the matching reads/lists must use the same
// encoding.
type NameEncoding string

const (
	// NameIdentity stores names unchanged.
	NameIdentity NameEncoding = "identity"

	// NameHex stores the lowercase hex of the name's UTF-8 bytes, which only
	// uses [0-9a-f] and is therefore a valid object name for any input.
	NameHex NameEncoding = "hex"
)

// ParseNameEncoding converts a configuration value into a NameEncoding.
func ParseNameEncoding(s string) (NameEncoding, error) {
	switch NameEncoding(strings.ToLower(s)) {
	case NameHex:
		return NameHex, nil
	case NameIdentity, "", "none":
		return NameIdentity, nil
	default:
		return "", fmt.Errorf("unknown name encoding: %s", s)
	}
}

// Encode returns the store-safe form of name.
func (e NameEncoding) Encode(name string) string {
	if e == NameHex {
		return hex.EncodeToString([]byte(name))
	}
	return name
}

// Decode returns the business name for a stored name.
func (e NameEncoding) Decode(stored string) (string, error) {
	if e != NameHex {
		return stored, nil
	}
	b, err := hex.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("object name %q is not hex encoded: %w", stored, err)
	}
	return string(b), nil
}
