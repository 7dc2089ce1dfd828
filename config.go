package relay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ProductionEnvironment is the only environment value that selects the production upstream
	ProductionEnvironment = "production"

	defaultListenAddress      = "127.0.0.1:3000"
	defaultUpstream           = "http://localhost:8081"
	defaultProductionUpstream = "http://179.190.40.40:8081"
	defaultUpstreamTimeout    = 10 * time.Second
	defaultDatabaseFile       = "relay.db"
)

// ErrUnknownConfigKey is returned by Set for keys config.yaml does not define
var ErrUnknownConfigKey = errors.New("unknown config key")

// Config is the relay configuration, read from config.yaml in the config dir and overridden by RELAY_* variables.
// The environment indicator also honours API_ENV and NODE_ENV.
type Config struct {
	viper              *viper.Viper
	ConfigDir          string        `mapstructure:"config_dir"`
	Environment        string        `mapstructure:"environment"`
	ListenAddress      string        `mapstructure:"listen_address"`
	DefaultUpstream    string        `mapstructure:"default_upstream"`
	ProductionUpstream string        `mapstructure:"production_upstream"`
	UpstreamTimeout    time.Duration `mapstructure:"upstream_timeout"` // 0 disables the deadline
	RecordTraffic      bool          `mapstructure:"record_traffic"`
	DatabasePath       string        `mapstructure:"database_path"`
	TLSCertFile        string        `mapstructure:"tls_cert_file"`
	TLSKeyFile         string        `mapstructure:"tls_key_file"`
}

// DefaultConfig returns the configuration used when no config dir is given.
func DefaultConfig() *Config {
	return &Config{
		Environment:        "development",
		ListenAddress:      defaultListenAddress,
		DefaultUpstream:    defaultUpstream,
		ProductionUpstream: defaultProductionUpstream,
		UpstreamTimeout:    defaultUpstreamTimeout,
	}
}

// ResolveUpstream maps the environment indicator to an upstream base URL.
// "production" selects the production address, anything else the default address.
func ResolveUpstream(environment, production, fallback string) string {
	if environment == ProductionEnvironment {
		return production
	}
	return fallback
}

// Upstream returns the upstream base URL for the configured environment.
func (cfg *Config) Upstream() string {
	return strings.TrimRight(ResolveUpstream(cfg.Environment, cfg.ProductionUpstream, cfg.DefaultUpstream), "/")
}

// TLSEnabled reports whether both the certificate and key files are configured.
func (cfg *Config) TLSEnabled() bool {
	return cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
}

// LoadConfig reads config.yaml from configDir, creating the directory and the file on first run.
func LoadConfig(configDir string) (*Config, error) {
	_, err := os.ReadDir(configDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checking if directory exists %s : %w", configDir, err)
		}
		if err := os.MkdirAll(configDir, 0700); err != nil {
			return nil, fmt.Errorf("creating config dir %s : %w", configDir, err)
		}
	}

	defaults := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetDefault("environment", defaults.Environment)
	v.SetDefault("listen_address", defaults.ListenAddress)
	v.SetDefault("default_upstream", defaults.DefaultUpstream)
	v.SetDefault("production_upstream", defaults.ProductionUpstream)
	v.SetDefault("upstream_timeout", defaults.UpstreamTimeout.String())
	v.SetDefault("record_traffic", false)
	v.SetDefault("database_path", "")
	v.SetDefault("tls_cert_file", "")
	v.SetDefault("tls_key_file", "")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("environment", "RELAY_ENVIRONMENT", "API_ENV", "NODE_ENV"); err != nil {
		return nil, fmt.Errorf("binding environment variables : %w", err)
	}

	err = v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file : %w", err)
		}
		if err := v.SafeWriteConfig(); err != nil {
			return nil, fmt.Errorf("writing config file : %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	cfg.viper = v
	cfg.ConfigDir = configDir

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize validates the decoded values and fills the ones derived from the config dir.
func (cfg *Config) normalize() error {
	if cfg.UpstreamTimeout < 0 {
		return fmt.Errorf("upstream_timeout must not be negative : %s", cfg.UpstreamTimeout)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.ConfigDir, defaultDatabaseFile)
	}
	return nil
}

// Set updates a single known key and writes the whole configuration back to config.yaml.
// The value is validated before anything is written.
func (cfg *Config) Set(key string, value any) error {
	if cfg.viper == nil {
		return errors.New("config was not loaded from a config dir")
	}
	key = strings.ToLower(key)
	if !slices.Contains(cfg.viper.AllKeys(), key) {
		return fmt.Errorf("%w : %s", ErrUnknownConfigKey, key)
	}

	previous := cfg.viper.Get(key)
	cfg.viper.Set(key, value)

	updated := &Config{ConfigDir: cfg.ConfigDir}
	if err := cfg.viper.Unmarshal(updated); err != nil {
		cfg.viper.Set(key, previous)
		return fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	if err := updated.normalize(); err != nil {
		cfg.viper.Set(key, previous)
		return err
	}

	if err := cfg.viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to save configuration : %w", err)
	}
	updated.viper = cfg.viper
	*cfg = *updated
	return nil
}
