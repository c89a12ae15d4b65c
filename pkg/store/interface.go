// Package store provides the backing-store contract for secret objects and
// its implementations: Kubernetes Secrets, an embedded BadgerDB store and an
// in-memory store for tests.
package store

import (
	"context"

	"github.com/rzbill/tokenvault/pkg/types"
)

// ListOptions controls a single page of a list call.
type ListOptions struct {
	// LabelSelector is a Kubernetes label selector string ("a=b,c!=d").
	LabelSelector string

	// Limit caps the number of items in the page. Zero means no limit.
	Limit int64

	// Continue is the cursor returned by the previous page.
	Continue string
}

// ListResult is one page of objects.
type ListResult struct {
	Items []*types.SecretObject

	// Continue is empty on the last page.
	Continue string
}

// Backend defines the operations the secret store needs from the remote
// object store. Implementations return the sentinel errors from pkg/types
// (ErrNotFound, ErrAlreadyExists, ErrConflict, ErrCursorExpired) and wrap
// everything else in a types.TransportError.
type Backend interface {
	// Get retrieves an object by namespace and name.
	Get(ctx context.Context, namespace, name string) (*types.SecretObject, error)

	// List returns one page of objects in a namespace. A stale or unknown
	// Continue cursor yields ErrCursorExpired.
	List(ctx context.Context, namespace string, opts ListOptions) (*ListResult, error)

	// Create stores a new object.
	Create(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error)

	// Update overwrites an existing object, metadata included, the way a PUT
	// does. When obj.ResourceVersion is set the write only succeeds if it
	// still matches.
	Update(ctx context.Context, obj *types.SecretObject) (*types.SecretObject, error)

	// Delete removes an object.
	Delete(ctx context.Context, namespace, name string) error

	// PatchMetadata merges labels and annotations into an object without
	// touching its data.
	PatchMetadata(ctx context.Context, namespace, name string, meta types.ObjectMeta) (*types.SecretObject, error)

	// EnsureNamespace creates the namespace if the backend has such a concept
	// and it does not exist yet.
	EnsureNamespace(ctx context.Context, namespace string) error

	// Close releases resources held by the backend.
	Close() error
}
