// Package secretstore is a key/value facade over a store.Backend: plain values
// in and out, encoded names and values on the wire, and list scans that
// survive continuation cursor expiry.
package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/tokenvault/pkg/codec"
	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/store"
	"github.com/rzbill/tokenvault/pkg/types"
	"k8s.io/apimachinery/pkg/labels"
)

// Secret is a decoded object.
type Secret struct {
	// Name is the business name, already decoded.
	Name            string
	Data            map[string]string
	Labels          map[string]string
	ResourceVersion string
}

// Store reads and writes secrets through a backend.
type Store struct {
	backend store.Backend
	config  Config
	logger  log.Logger
}

// New creates a Store. A non-positive PageSize or a negative MaxListRestarts
// falls back to DefaultConfig.
func New(backend store.Backend, config Config, logger log.Logger) *Store {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxListRestarts < 0 {
		config.MaxListRestarts = defaults.MaxListRestarts
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Store{
		backend: backend,
		config:  config,
		logger:  logger.WithComponent("secret-store"),
	}
}

func (s *Store) decode(obj *types.SecretObject, name string) (*Secret, error) {
	data, err := codec.DecodeData(obj.Data)
	if err != nil {
		return nil, fmt.Errorf("secret %s/%s: %w", obj.Namespace, obj.Name, err)
	}
	return &Secret{
		Name:            name,
		Data:            data,
		Labels:          obj.Labels,
		ResourceVersion: obj.ResourceVersion,
	}, nil
}

// Get returns the decoded secret, or an error wrapping types.ErrNotFound.
func (s *Store) Get(ctx context.Context, namespace, name string, opts ...Option) (*Secret, error) {
	o := parseOptions(opts...)
	obj, err := s.backend.Get(ctx, namespace, o.names.Encode(name))
	if err != nil {
		return nil, err
	}
	return s.decode(obj, name)
}

// List returns name -> data for every object matching selector. See ListSecrets.
func (s *Store) List(ctx context.Context, namespace string, selector map[string]string, opts ...Option) (map[string]map[string]string, error) {
	secrets, err := s.ListSecrets(ctx, namespace, selector, opts...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(secrets))
	for _, secret := range secrets {
		out[secret.Name] = secret.Data
	}
	return out, nil
}

// ListSecrets scans the namespace page by page. If the continuation cursor
// expires the partial result is dropped and the scan starts over, at most
// MaxListRestarts times. Names that cannot be decoded fail the whole list.
func (s *Store) ListSecrets(ctx context.Context, namespace string, selector map[string]string, opts ...Option) ([]*Secret, error) {
	o := parseOptions(opts...)
	listOpts := store.ListOptions{
		LabelSelector: labels.SelectorFromSet(labels.Set(selector)).String(),
		Limit:         s.config.PageSize,
	}

	var result []*Secret
	restarts := 0
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.backend.List(ctx, namespace, listOpts)
		if errors.Is(err, types.ErrCursorExpired) {
			if restarts >= s.config.MaxListRestarts {
				return nil, fmt.Errorf("list secrets in %s: %w after %d restarts: %v",
					namespace, types.ErrListRestartsExhausted, restarts, err)
			}
			restarts++
			s.logger.Warn("List cursor expired, restarting scan",
				log.Str("namespace", namespace),
				log.Int("restart", restarts),
				log.Int("discarded", len(result)))
			result = nil
			listOpts.Continue = ""
			continue
		}
		if err != nil {
			return nil, err
		}
		pages++

		for _, item := range page.Items {
			name, err := o.names.Decode(item.Name)
			if err != nil {
				return nil, fmt.Errorf("secret %s/%s: %w", namespace, item.Name, err)
			}
			secret, err := s.decode(item, name)
			if err != nil {
				return nil, err
			}
			result = append(result, secret)
		}

		if page.Continue == "" {
			break
		}
		listOpts.Continue = page.Continue
	}

	s.logger.Debug("Listed secrets",
		log.Str("namespace", namespace),
		log.Str("selector", listOpts.LabelSelector),
		log.Int("count", len(result)),
		log.Int("pages", pages),
		log.Int("restarts", restarts))
	return result, nil
}

func (s *Store) object(namespace, name string, data map[string]string, o callOptions) *types.SecretObject {
	return &types.SecretObject{
		Namespace:       namespace,
		Name:            o.names.Encode(name),
		Type:            o.secretType,
		Labels:          o.labels,
		Data:            codec.EncodeData(data),
		ResourceVersion: o.resourceVersion,
	}
}

// Create stores a new secret. An existing object yields types.ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, namespace, name string, data map[string]string, opts ...Option) (*Secret, error) {
	o := parseOptions(opts...)
	obj := s.object(namespace, name, data, o)
	obj.ResourceVersion = ""

	created, err := s.backend.Create(ctx, obj)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Created secret", log.Str("namespace", namespace), log.Str("name", obj.Name))
	return s.decode(created, name)
}

// Replace overwrites data and labels of an existing secret. With
// WithResourceVersion the write fails with types.ErrConflict if the object
// changed since it was read.
func (s *Store) Replace(ctx context.Context, namespace, name string, data map[string]string, opts ...Option) (*Secret, error) {
	o := parseOptions(opts...)
	obj := s.object(namespace, name, data, o)

	updated, err := s.backend.Update(ctx, obj)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Replaced secret",
		log.Str("namespace", namespace),
		log.Str("name", obj.Name),
		log.Int("entries", len(data)))
	return s.decode(updated, name)
}

// Remove deletes a secret.
func (s *Store) Remove(ctx context.Context, namespace, name string, opts ...Option) error {
	o := parseOptions(opts...)
	if err := s.backend.Delete(ctx, namespace, o.names.Encode(name)); err != nil {
		return err
	}
	s.logger.Debug("Removed secret", log.Str("namespace", namespace), log.Str("name", o.names.Encode(name)))
	return nil
}

// PatchMetadata merges labels and annotations without touching data.
func (s *Store) PatchMetadata(ctx context.Context, namespace, name string, meta types.ObjectMeta, opts ...Option) (*Secret, error) {
	o := parseOptions(opts...)
	patched, err := s.backend.PatchMetadata(ctx, namespace, o.names.Encode(name), meta)
	if err != nil {
		return nil, err
	}
	return s.decode(patched, name)
}

// EnsureNamespace makes sure the namespace exists on the backend.
func (s *Store) EnsureNamespace(ctx context.Context, namespace string) error {
	return s.backend.EnsureNamespace(ctx, namespace)
}
