package secretstore

import (
	"github.com/rzbill/tokenvault/pkg/codec"
)

// Config holds the list behaviour of a Store.
type Config struct {
	// PageSize is the page limit for list calls.
	PageSize int64

	// MaxListRestarts caps how often a list scan may start over after its
	// continue token expired.
	MaxListRestarts int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:        500,
		MaxListRestarts: 5,
	}
}

// Option modifies a single call.
type Option func(*callOptions)

type callOptions struct {
	names           codec.NameEncoding
	labels          map[string]string
	secretType      string
	resourceVersion string
}

func parseOptions(opts ...Option) callOptions {
	o := callOptions{
		names:      codec.NameIdentity,
		secretType: "Opaque",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithEncodeName stores object names with the given encoding. Reads and
// lists of the same objects must pass the same encoding.
func WithEncodeName(enc codec.NameEncoding) Option {
	return func(o *callOptions) {
		o.names = enc
	}
}

// WithLabels sets the labels written by Create and Replace.
func WithLabels(labels map[string]string) Option {
	return func(o *callOptions) {
		o.labels = labels
	}
}

// WithType sets the object type written by Create and Replace.
func WithType(secretType string) Option {
	return func(o *callOptions) {
		o.secretType = secretType
	}
}

// WithResourceVersion makes Replace conditional on the object still being at
// the given version.
func WithResourceVersion(rv string) Option {
	return func(o *callOptions) {
		o.resourceVersion = rv
	}
}
