package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rzbill/tokenvault/pkg/codec"
	"github.com/rzbill/tokenvault/pkg/crypto"
	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/secretstore"
	"github.com/rzbill/tokenvault/pkg/tokens"
	"github.com/spf13/viper"
	"k8s.io/client-go/util/retry"
)

// Backend names accepted by store.backend.
const (
	BackendKubernetes = "kubernetes"
	BackendBadger     = "badger"
	BackendMemory     = "memory"
)

// DefaultMetricsAddr is where serve exposes /metrics.
var DefaultMetricsAddr = ":9464"

type Token struct {
	Secret                string        `mapstructure:"secret" yaml:"secret"`
	DefaultExpiry         time.Duration `mapstructure:"default_expiry" yaml:"default_expiry"`
	Namespace             string        `mapstructure:"namespace" yaml:"namespace"`
	NameEncoding          string        `mapstructure:"name_encoding" yaml:"name_encoding"`
	OptimisticConcurrency bool          `mapstructure:"optimistic_concurrency" yaml:"optimistic_concurrency"`
	SweepSchedule         string        `mapstructure:"sweep_schedule" yaml:"sweep_schedule"`
	IncludeUnlabeled      bool          `mapstructure:"include_unlabeled" yaml:"include_unlabeled"`
}

type Store struct {
	Backend         string `mapstructure:"backend" yaml:"backend"`
	Kubeconfig      string `mapstructure:"kubeconfig" yaml:"kubeconfig"`
	DataDir         string `mapstructure:"data_dir" yaml:"data_dir"`
	PageSize        int64  `mapstructure:"page_size" yaml:"page_size"`
	MaxListRestarts int    `mapstructure:"max_list_restarts" yaml:"max_list_restarts"`
	EnsureNamespace bool   `mapstructure:"ensure_namespace" yaml:"ensure_namespace"`

	// Encryption at rest for the badger backend
	KEKSource string `mapstructure:"kek_source" yaml:"kek_source"`
	KEKFile   string `mapstructure:"kek_file" yaml:"kek_file"`
	KEKEnv    string `mapstructure:"kek_env" yaml:"kek_env"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type Metrics struct {
	Address string `mapstructure:"address" yaml:"address"`
}

type Config struct {
	Token   Token   `mapstructure:"token" yaml:"token"`
	Store   Store   `mapstructure:"store" yaml:"store"`
	Log     Log     `mapstructure:"log" yaml:"log"`
	Metrics Metrics `mapstructure:"metrics" yaml:"metrics"`
}

func Default() *Config {
	return &Config{
		Token: Token{
			DefaultExpiry: 7 * 24 * time.Hour,
			Namespace:     "pai-user-token",
			NameEncoding:  string(codec.NameHex),
		},
		Store: Store{
			Backend:         BackendKubernetes,
			DataDir:         defaultDataDir(),
			PageSize:        500,
			MaxListRestarts: 5,
			EnsureNamespace: true,
			KEKEnv:          "TOKENVAULT_STORE_KEY",
		},
		Log:     Log{Level: "info", Format: "text"},
		Metrics: Metrics{Address: DefaultMetricsAddr},
	}
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./data"
	}
	return filepath.Join(home, ".tokenvault")
}

// envVarMappings binds environment variables that do not follow the
// TOKENVAULT_<SECTION>_<KEY> scheme.
var envVarMappings = map[string]string{
	// legacy name used by PAI rest-server deployments
	"PAI_TOKEN_NAMESPACE": "token.namespace",
	"KUBECONFIG":          "store.kubeconfig",
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("token.secret", d.Token.Secret)
	v.SetDefault("token.default_expiry", d.Token.DefaultExpiry)
	v.SetDefault("token.namespace", d.Token.Namespace)
	v.SetDefault("token.name_encoding", d.Token.NameEncoding)
	v.SetDefault("token.optimistic_concurrency", d.Token.OptimisticConcurrency)
	v.SetDefault("token.sweep_schedule", d.Token.SweepSchedule)
	v.SetDefault("token.include_unlabeled", d.Token.IncludeUnlabeled)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.kubeconfig", d.Store.Kubeconfig)
	v.SetDefault("store.data_dir", d.Store.DataDir)
	v.SetDefault("store.page_size", d.Store.PageSize)
	v.SetDefault("store.max_list_restarts", d.Store.MaxListRestarts)
	v.SetDefault("store.ensure_namespace", d.Store.EnsureNamespace)
	v.SetDefault("store.kek_source", d.Store.KEKSource)
	v.SetDefault("store.kek_file", d.Store.KEKFile)
	v.SetDefault("store.kek_env", d.Store.KEKEnv)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.address", d.Metrics.Address)
}

// NewViper returns a viper instance with defaults, file discovery and
// environment overrides set up. An empty path searches ./tokenvault.yaml,
// $HOME/.tokenvault/ and /etc/tokenvault/.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tokenvault")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")                 // Local development override
		v.AddConfigPath("$HOME/.tokenvault") // Per-user config
		v.AddConfigPath("/etc/tokenvault/")  // System-wide production config
	}

	v.SetEnvPrefix("TOKENVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for env, key := range envVarMappings {
		_ = v.BindEnv(key, "TOKENVAULT_"+strings.ToUpper(strings.NewReplacer(".", "_").Replace(key)), env)
	}
	return v
}

// Load reads configuration from path (or the standard locations) and the
// environment. A missing auto-discovered file is not an error.
func Load(path string) (*Config, error) {
	return LoadViper(NewViper(path), path != "")
}

// LoadViper unmarshals v, reading its config file first. With required set a
// missing file is an error.
func LoadViper(v *viper.Viper, required bool) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if required || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c.Token.Namespace == "" {
		return fmt.Errorf("token.namespace must not be empty")
	}
	if c.Token.DefaultExpiry <= 0 {
		return fmt.Errorf("token.default_expiry must be positive")
	}
	if _, err := codec.ParseNameEncoding(c.Token.NameEncoding); err != nil {
		return fmt.Errorf("token.name_encoding: %w", err)
	}
	switch c.Store.Backend {
	case BackendKubernetes, BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if _, err := crypto.ParseKEKSource(c.Store.KEKSource); err != nil {
		return fmt.Errorf("store.kek_source: %w", err)
	}
	if c.Store.MaxListRestarts < 0 {
		return fmt.Errorf("store.max_list_restarts must not be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// RequireSecret checks that a signing secret is configured.
func (c *Config) RequireSecret() error {
	if c.Token.Secret == "" {
		return fmt.Errorf("token.secret is required (set TOKENVAULT_TOKEN_SECRET)")
	}
	return nil
}

// SecretStoreConfig returns the list settings for the secret store.
func (c *Config) SecretStoreConfig() secretstore.Config {
	return secretstore.Config{
		PageSize:        c.Store.PageSize,
		MaxListRestarts: c.Store.MaxListRestarts,
	}
}

// TokensConfig returns the token manager settings.
func (c *Config) TokensConfig() (tokens.Config, error) {
	enc, err := codec.ParseNameEncoding(c.Token.NameEncoding)
	if err != nil {
		return tokens.Config{}, err
	}
	return tokens.Config{
		Namespace:             c.Token.Namespace,
		DefaultExpiry:         c.Token.DefaultExpiry,
		NameEncoding:          enc,
		OptimisticConcurrency: c.Token.OptimisticConcurrency,
		Backoff:               retry.DefaultBackoff,
		IncludeUnlabeled:      c.Token.IncludeUnlabeled,
	}, nil
}

// KEKOptions returns how to load the badger encryption key. A key file is
// generated on first use and defaults to store.key in the data directory.
func (c *Config) KEKOptions() crypto.KEKOptions {
	source, _ := crypto.ParseKEKSource(c.Store.KEKSource)
	path := c.Store.KEKFile
	if path == "" {
		path = filepath.Join(c.Store.DataDir, "store.key")
	}
	return crypto.KEKOptions{
		Source:            source,
		FilePath:          path,
		EnvVar:            c.Store.KEKEnv,
		GenerateIfMissing: true,
	}
}

// LogConfig returns the logger settings.
func (c *Config) LogConfig() *log.Config {
	return &log.Config{Level: c.Log.Level, Format: c.Log.Format}
}
