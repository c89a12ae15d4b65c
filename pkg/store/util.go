package store

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rzbill/tokenvault/pkg/types"
	"k8s.io/apimachinery/pkg/labels"
)

// secretsPrefix is the key space used by key/value backends.
const secretsPrefix = "secrets"

// MakeKey creates a standardized key for an object.
func MakeKey(namespace, name string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s", secretsPrefix, namespace, name))
}

// MakePrefix creates a prefix for listing objects in a namespace.
func MakePrefix(namespace string) []byte {
	return []byte(fmt.Sprintf("%s/%s/", secretsPrefix, namespace))
}

// ParseKey parses a key into its components.
func ParseKey(key []byte) (namespace, name string, ok bool) {
	parts := strings.SplitN(string(key), "/", 3)
	if len(parts) != 3 || parts[0] != secretsPrefix {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// encodeCursor turns the last returned object name into an opaque cursor.
func encodeCursor(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name))
}

// decodeCursor reverses encodeCursor. Anything it cannot read is treated as
// an expired cursor so callers restart the scan.
func decodeCursor(cursor string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || len(b) == 0 {
		return "", fmt.Errorf("%w: unreadable continue token %q", types.ErrCursorExpired, cursor)
	}
	return string(b), nil
}

// parseSelector parses a label selector; the empty string matches everything.
func parseSelector(selector string) (labels.Selector, error) {
	sel, err := labels.Parse(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid label selector %q: %w", selector, err)
	}
	return sel, nil
}

// mergeMeta merges src into dst, returning dst (allocated if nil).
func mergeMeta(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// notFound formats a not found error for namespace/name.
func notFound(namespace, name string) error {
	return fmt.Errorf("secret %s/%s: %w", namespace, name, types.ErrNotFound)
}

// alreadyExists formats an already exists error for namespace/name.
func alreadyExists(namespace, name string) error {
	return fmt.Errorf("secret %s/%s: %w", namespace, name, types.ErrAlreadyExists)
}

// IsNotFoundError checks if an error is a not found error.
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, types.ErrNotFound)
}

// IsAlreadyExistsError checks if an error is an already exists error.
func IsAlreadyExistsError(err error) bool {
	return err != nil && errors.Is(err, types.ErrAlreadyExists)
}
