// Package crypto loads the key that encrypts the local token store at rest.
package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// KeySize is the length of a store key (AES-256).
const KeySize = 32

// KEKSource defines where the store key comes from
type KEKSource string

const (
	KEKSourceNone KEKSource = ""
	KEKSourceFile KEKSource = "file"
	KEKSourceEnv  KEKSource = "env"
)

// ParseKEKSource validates a configured key source.
func ParseKEKSource(s string) (KEKSource, error) {
	switch src := KEKSource(s); src {
	case KEKSourceNone, KEKSourceFile, KEKSourceEnv:
		return src, nil
	default:
		return "", fmt.Errorf("unknown kek source: %s", s)
	}
}

// KEKOptions holds configuration for loading the store key
type KEKOptions struct {
	Source            KEKSource
	FilePath          string
	EnvVar            string // e.g., TOKENVAULT_STORE_KEY
	GenerateIfMissing bool
}

// LoadOrGenerateKEK loads a 32-byte key according to opts. File and env
// values are base64-encoded. With GenerateIfMissing a missing key file is
// created with a random key and permissions 0600. KEKSourceNone returns a
// nil key, meaning no encryption.
func LoadOrGenerateKEK(opts KEKOptions) ([]byte, error) {
	switch opts.Source {
	case KEKSourceNone:
		return nil, nil
	case KEKSourceFile:
		if opts.FilePath == "" {
			return nil, errors.New("kek file path is required")
		}
		b64, err := os.ReadFile(opts.FilePath)
		if err != nil {
			if opts.GenerateIfMissing && errors.Is(err, os.ErrNotExist) {
				return generateAndPersistKEK(opts.FilePath)
			}
			return nil, fmt.Errorf("failed to read kek file: %w", err)
		}
		key, err := decodeB64Key(string(bytes.TrimSpace(b64)))
		if err != nil {
			return nil, fmt.Errorf("invalid kek file %s: %w", opts.FilePath, err)
		}
		return key, nil
	case KEKSourceEnv:
		if opts.EnvVar == "" {
			return nil, errors.New("kek env var is required")
		}
		val := os.Getenv(opts.EnvVar)
		if val == "" {
			return nil, fmt.Errorf("env var %s is empty", opts.EnvVar)
		}
		key, err := decodeB64Key(val)
		if err != nil {
			return nil, fmt.Errorf("invalid key in %s: %w", opts.EnvVar, err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unknown kek source: %s", opts.Source)
	}
}

func generateAndPersistKEK(path string) ([]byte, error) {
	key, err := RandomBytes(KeySize)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create dir for kek: %w", err)
	}
	// never overwrite a key another process just wrote
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create kek file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("failed to write kek file: %w", err)
	}
	return key, nil
}

func decodeB64Key(v string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: got %d, want %d", len(key), KeySize)
	}
	return key, nil
}
