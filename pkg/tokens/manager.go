// Package tokens manages the lifecycle of bearer tokens: issuing, listing,
// verifying and revoking them. Tokens are signed JWTs, and a token is only
// live while its exact string is stored in the owner's secret object, so
// removing the entry revokes it.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/tokenvault/pkg/codec"
	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/secretstore"
	"github.com/rzbill/tokenvault/pkg/types"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"
)

const (
	// LabelKind marks objects owned by the token manager.
	LabelKind = "tokenvault.rzbill.dev/kind"

	// KindUserTokens is the LabelKind value of per-user token objects.
	KindUserTokens = "user-tokens"
)

// Config configures a Manager.
type Config struct {
	// Namespace holds one token object per user.
	Namespace string

	// DefaultExpiry applies to user tokens created without an explicit
	// expiry. Application tokens without one never expire.
	DefaultExpiry time.Duration

	// NameEncoding maps usernames to object names.
	NameEncoding codec.NameEncoding

	// OptimisticConcurrency makes every write conditional on the version
	// that was read and retries the read-modify-write on conflict. When off,
	// concurrent writers to the same user can lose each other's updates.
	OptimisticConcurrency bool

	// Backoff paces conflict retries.
	Backoff wait.Backoff

	// IncludeUnlabeled makes Users and Sweep scan every object in Namespace
	// instead of only those carrying LabelKind. Objects written by older
	// deployments have no labels until their next token write.
	IncludeUnlabeled bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:     "pai-user-token",
		DefaultExpiry: 7 * 24 * time.Hour,
		NameEncoding:  codec.NameHex,
		Backoff:       retry.DefaultRetry,
	}
}

// Manager issues and tracks tokens.
type Manager struct {
	secrets *secretstore.Store
	signer  *codec.Signer
	config  Config
	logger  log.Logger
	metrics *Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records operations on metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates a Manager.
func NewManager(secrets *secretstore.Store, signer *codec.Signer, config Config, opts ...Option) (*Manager, error) {
	if secrets == nil || signer == nil {
		return nil, errors.New("token manager requires a secret store and a signer")
	}
	if config.Namespace == "" {
		return nil, errors.New("token namespace is required")
	}
	if config.DefaultExpiry <= 0 {
		return nil, errors.New("token default expiry must be positive")
	}
	if config.NameEncoding == "" {
		config.NameEncoding = codec.NameHex
	}
	if config.Backoff.Steps == 0 {
		config.Backoff = retry.DefaultRetry
	}

	m := &Manager{
		secrets: secrets,
		signer:  signer,
		config:  config,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.GetDefaultLogger()
	}
	m.logger = m.logger.WithComponent("tokens")
	return m, nil
}

func (m *Manager) labels() map[string]string {
	return map[string]string{LabelKind: KindUserTokens}
}

// selector picks the objects Users and Sweep scan. Nil matches everything.
func (m *Manager) selector() map[string]string {
	if m.config.IncludeUnlabeled {
		return nil
	}
	return m.labels()
}

func (m *Manager) readOpts() []secretstore.Option {
	return []secretstore.Option{secretstore.WithEncodeName(m.config.NameEncoding)}
}

// writeOpts returns the options for writing an object read at version rv.
func (m *Manager) writeOpts(rv string) []secretstore.Option {
	opts := []secretstore.Option{
		secretstore.WithEncodeName(m.config.NameEncoding),
		secretstore.WithLabels(m.labels()),
	}
	if m.config.OptimisticConcurrency && rv != "" {
		opts = append(opts, secretstore.WithResourceVersion(rv))
	}
	return opts
}

// withRetry runs fn once, or until it stops conflicting when optimistic
// concurrency is on.
func (m *Manager) withRetry(fn func() error) error {
	if !m.config.OptimisticConcurrency {
		return fn()
	}
	attempt := 0
	return retry.OnError(m.config.Backoff, func(err error) bool {
		return errors.Is(err, types.ErrConflict)
	}, func() error {
		attempt++
		if attempt > 1 {
			m.logger.Debug("Retrying token update after conflict", log.Int("attempt", attempt))
		}
		return fn()
	})
}

// purge drops every entry whose token no longer verifies, either because it
// expired or because it was not signed with the current key.
func (m *Manager) purge(data map[string]string) (map[string]string, int) {
	kept := lo.PickBy(data, func(_ string, token string) bool {
		_, err := m.signer.Verify(token)
		return err == nil
	})
	return kept, len(data) - len(kept)
}

// modifyOnce reads username's object, purges it, applies mutate and writes
// the result back if anything changed. It returns the resulting entries.
// A missing object is reported as types.ErrNotFound.
func (m *Manager) modifyOnce(ctx context.Context, username string, mutate func(map[string]string) map[string]string) (map[string]string, error) {
	secret, err := m.secrets.Get(ctx, m.config.Namespace, username, m.readOpts()...)
	if err != nil {
		return nil, err
	}

	data, purged := m.purge(secret.Data)
	if mutate != nil {
		data = mutate(data)
	}
	if maps.Equal(data, secret.Data) {
		return data, nil
	}

	if _, err := m.secrets.Replace(ctx, m.config.Namespace, username, data, m.writeOpts(secret.ResourceVersion)...); err != nil {
		return nil, err
	}
	m.metrics.addPurged(purged)
	if purged > 0 {
		m.logger.Debug("Purged stale tokens", log.Str("user", username), log.Int("purged", purged))
	}
	return data, nil
}

func (m *Manager) modify(ctx context.Context, username string, mutate func(map[string]string) map[string]string) (map[string]string, error) {
	var result map[string]string
	err := m.withRetry(func() error {
		var err error
		result, err = m.modifyOnce(ctx, username, mutate)
		return err
	})
	return result, err
}

// Create issues a token for username and stores it. For user tokens a
// non-positive expiresIn means DefaultExpiry, so user tokens always expire.
// Application tokens without an expiry never expire; a negative expiry is
// rejected for them. The token is only returned once it has been stored.
func (m *Manager) Create(ctx context.Context, username string, application bool, expiresIn time.Duration) (token string, err error) {
	defer func() { m.metrics.observe("create", err) }()

	if username == "" {
		return "", types.NewValidationError("username is required")
	}
	if application && expiresIn < 0 {
		return "", types.NewValidationError("expiry must not be negative")
	}
	if !application && expiresIn <= 0 {
		expiresIn = m.config.DefaultExpiry
	}

	token, err = m.signer.Sign(types.TokenPayload{Username: username, Application: application}, expiresIn)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	add := func(data map[string]string) map[string]string {
		data[id] = token
		return data
	}

	err = m.withRetry(func() error {
		_, err := m.modifyOnce(ctx, username, add)
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
		_, err = m.secrets.Create(ctx, m.config.Namespace, username, map[string]string{id: token}, m.writeOpts("")...)
		if errors.Is(err, types.ErrAlreadyExists) {
			m.logger.Debug("Token object created concurrently, appending instead", log.Str("user", username))
			_, err = m.modifyOnce(ctx, username, add)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to store token for %s: %w", username, err)
	}

	m.logger.Info("Issued token",
		log.Str("user", username),
		log.Bool("application", application),
		log.Duration("expiresIn", expiresIn))
	return token, nil
}

// List returns the live tokens of username, dropping expired ones from
// storage on the way. A user without a token object has no tokens.
func (m *Manager) List(ctx context.Context, username string) (tokens []string, err error) {
	defer func() { m.metrics.observe("list", err) }()

	data, err := m.modify(ctx, username, nil)
	if errors.Is(err, types.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	tokens = lo.Values(data)
	sort.Strings(tokens)
	return tokens, nil
}

// Revoke removes token from its owner's object. The token has to verify:
// forged tokens are rejected with types.ErrInvalidToken and expired ones
// with types.ErrExpiredToken. Revoking a token that is no longer stored is
// not an error.
func (m *Manager) Revoke(ctx context.Context, token string) (err error) {
	defer func() { m.metrics.observe("revoke", err) }()

	payload, err := m.signer.Verify(token)
	if err != nil {
		return err
	}

	_, err = m.modify(ctx, payload.Username, func(data map[string]string) map[string]string {
		return lo.OmitByValues(data, []string{token})
	})
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("no tokens stored for %s: %w", payload.Username, types.ErrNotFound)
	}
	if err != nil {
		return err
	}

	m.logger.Info("Revoked token", log.Str("user", payload.Username))
	return nil
}

// BatchRevoke removes every live token of username matched by predicate. A
// nil predicate matches everything. A user without a token object has
// nothing to revoke.
func (m *Manager) BatchRevoke(ctx context.Context, username string, predicate Predicate) (err error) {
	defer func() { m.metrics.observe("batch_revoke", err) }()

	if predicate == nil {
		predicate = All()
	}

	revoked := 0
	_, err = m.modify(ctx, username, func(data map[string]string) map[string]string {
		kept := lo.OmitBy(data, func(_ string, token string) bool {
			payload, err := m.signer.Verify(token)
			return err == nil && predicate(*payload)
		})
		revoked = len(data) - len(kept)
		return kept
	})
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	m.logger.Info("Revoked tokens", log.Str("user", username), log.Int("revoked", revoked))
	return nil
}

// Verify returns the payload of a live token. Besides the signature and
// expiry checks of the signer, the token must still be stored for its
// owner; otherwise it fails with types.ErrRevokedToken.
func (m *Manager) Verify(ctx context.Context, token string) (payload *types.TokenPayload, err error) {
	defer func() { m.metrics.observe("verify", err) }()

	payload, err = m.signer.Verify(token)
	if err != nil {
		return nil, err
	}

	data, err := m.modify(ctx, payload.Username, nil)
	if errors.Is(err, types.ErrNotFound) {
		return nil, types.ErrRevokedToken
	}
	if err != nil {
		return nil, err
	}
	if !lo.Contains(lo.Values(data), token) {
		return nil, types.ErrRevokedToken
	}
	return payload, nil
}
