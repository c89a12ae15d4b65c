package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rzbill/tokenvault/internal/config"
	"github.com/rzbill/tokenvault/pkg/codec"
	"github.com/rzbill/tokenvault/pkg/crypto"
	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/secretstore"
	"github.com/rzbill/tokenvault/pkg/store"
	"github.com/rzbill/tokenvault/pkg/tokens"
	"github.com/rzbill/tokenvault/pkg/types"
)

// session bundles what a command needs to work with tokens.
type session struct {
	config  *config.Config
	logger  log.Logger
	backend store.Backend
	signer  *codec.Signer
	manager *tokens.Manager
}

// Close releases the backend.
func (s *session) Close() error {
	return s.backend.Close()
}

// backendFactory opens the configured backend. Tests swap it for a shared
// memory backend.
var backendFactory = openBackend

func openBackend(cfg *config.Config, logger log.Logger) (store.Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendKubernetes:
		restConfig, err := store.LoadRestConfig(cfg.Store.Kubeconfig)
		if err != nil {
			return nil, err
		}
		return store.NewKubeBackendForConfig(restConfig, logger)
	case config.BackendBadger:
		if err := os.MkdirAll(cfg.Store.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.Store.DataDir, err)
		}
		key, err := crypto.LoadOrGenerateKEK(cfg.KEKOptions())
		if err != nil {
			return nil, err
		}
		backend := store.NewBadgerBackend(logger)
		backend.SetEncryptionKey(key)
		if err := backend.Open(cfg.Store.DataDir); err != nil {
			return nil, err
		}
		return backend, nil
	case config.BackendMemory:
		return store.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}

// loadConfig reads the config file and environment, applying flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.RequireSecret(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newSession loads configuration and wires backend, secret store and token
// manager. A nil registerer disables metrics.
func newSession(ctx context.Context, reg prometheus.Registerer) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := log.ApplyConfig(cfg.LogConfig())
	if err != nil {
		return nil, err
	}

	backend, err := backendFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	signer, err := codec.NewSigner([]byte(cfg.Token.Secret))
	if err != nil {
		backend.Close()
		return nil, err
	}

	tokensConfig, err := cfg.TokensConfig()
	if err != nil {
		backend.Close()
		return nil, err
	}

	opts := []tokens.Option{tokens.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, tokens.WithMetrics(tokens.NewMetrics(reg)))
	}
	secrets := secretstore.New(backend, cfg.SecretStoreConfig(), logger)
	manager, err := tokens.NewManager(secrets, signer, tokensConfig, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	if cfg.Store.EnsureNamespace {
		if err := manager.EnsureNamespace(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to prepare namespace %s: %w", cfg.Token.Namespace, err)
		}
	}

	return &session{
		config:  cfg,
		logger:  logger,
		backend: backend,
		signer:  signer,
		manager: manager,
	}, nil
}

// exitCode maps token errors onto distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidToken):
		return 2
	case errors.Is(err, types.ErrExpiredToken):
		return 3
	case errors.Is(err, types.ErrRevokedToken):
		return 4
	case errors.Is(err, types.ErrNotFound):
		return 5
	default:
		return 1
	}
}
