package tokens

import (
	"context"
	"errors"
	"sort"

	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/secretstore"
	"github.com/rzbill/tokenvault/pkg/types"
	"github.com/samber/lo"
)

// SweepResult summarises a sweep.
type SweepResult struct {
	// Objects is the number of token objects scanned.
	Objects int

	// Updated is the number of objects written back.
	Updated int

	// Purged is the number of tokens removed.
	Purged int

	// Skipped is the number of objects changed by someone else mid-sweep.
	Skipped int
}

// Sweep purges stale tokens from every token object (see
// Config.IncludeUnlabeled). Writes are always conditional on the version
// that was listed: an object modified in the meantime is skipped and left to
// the next sweep or to lazy purging.
func (m *Manager) Sweep(ctx context.Context) (result SweepResult, err error) {
	defer func() { m.metrics.observe("sweep", err) }()

	secrets, err := m.secrets.ListSecrets(ctx, m.config.Namespace, m.selector(), m.readOpts()...)
	if err != nil {
		return result, err
	}
	result.Objects = len(secrets)

	for _, secret := range secrets {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		kept, purged := m.purge(secret.Data)
		if purged == 0 {
			continue
		}

		opts := []secretstore.Option{
			secretstore.WithEncodeName(m.config.NameEncoding),
			secretstore.WithLabels(m.labels()),
			secretstore.WithResourceVersion(secret.ResourceVersion),
		}
		_, err := m.secrets.Replace(ctx, m.config.Namespace, secret.Name, kept, opts...)
		if errors.Is(err, types.ErrConflict) || errors.Is(err, types.ErrNotFound) {
			m.logger.Debug("Token object changed during sweep, skipping", log.Str("user", secret.Name), log.Err(err))
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}

		result.Updated++
		result.Purged += purged
		m.metrics.addPurged(purged)
	}

	m.logger.Info("Swept token objects",
		log.Int("objects", result.Objects),
		log.Int("updated", result.Updated),
		log.Int("purged", result.Purged),
		log.Int("skipped", result.Skipped))
	return result, nil
}

// Users returns the usernames that own a token object, sorted.
func (m *Manager) Users(ctx context.Context) (users []string, err error) {
	defer func() { m.metrics.observe("users", err) }()

	secrets, err := m.secrets.ListSecrets(ctx, m.config.Namespace, m.selector(), m.readOpts()...)
	if err != nil {
		return nil, err
	}
	users = lo.Map(secrets, func(s *secretstore.Secret, _ int) string { return s.Name })
	sort.Strings(users)
	return users, nil
}

// EnsureNamespace prepares the backend for storing tokens.
func (m *Manager) EnsureNamespace(ctx context.Context) error {
	return m.secrets.EnsureNamespace(ctx, m.config.Namespace)
}
