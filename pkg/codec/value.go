// Package codec holds the encodings used on the way to and from the backing
// store: value encoding, object-name encoding and token signing.
package codec

import (
	"encoding/base64"
	"fmt"
)

// EncodeValue encodes a plain value for storage. The result is standard
// base64, the same representation Kubernetes uses for Secret data.
func EncodeValue(plain string) string {
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

// DecodeValue reverses EncodeValue.
func DecodeValue(stored string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decode stored value: %w", err)
	}
	return string(b), nil
}

// EncodeData encodes every value of data. A nil map encodes to an empty map.
func EncodeData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = EncodeValue(v)
	}
	return out
}

// DecodeData decodes every value of data. A nil map decodes to an empty map.
func DecodeData(data map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(data))
	for k, v := range data {
		plain, err := DecodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}
