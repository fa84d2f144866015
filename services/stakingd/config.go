package stakingd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stakeledger/services/stakingd/journal"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for stakingd.
type Config struct {
	ListenAddress   string          `yaml:"listen"`
	DataDir         string          `yaml:"data_dir"`
	GenesisPath     string          `yaml:"genesis"`
	LogFile         string          `yaml:"log_file"`
	LogMaxSizeMB    int             `yaml:"log_max_size_mb"`
	LogMaxBackups   int             `yaml:"log_max_backups"`
	RequestTimeout  Duration        `yaml:"request_timeout"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"`
	EventBacklog    int             `yaml:"event_backlog"`
	HealthListen    string          `yaml:"grpc_health_listen"`
	Auth            AuthConfig      `yaml:"auth"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Journal         JournalConfig   `yaml:"journal"`
	Bank            BankConfig      `yaml:"bank"`
}

// AuthConfig configures JWT verification for execute routes.
type AuthConfig struct {
	HMACSecret    string `yaml:"hmac_secret"`
	HMACSecretEnv string `yaml:"hmac_secret_env"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// RateLimitConfig bounds execute traffic per authenticated caller.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// JournalConfig selects the audit journal database.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// BankConfig seeds the in-process settlement bank. Keys are token addresses
// and values are base-10 integers.
type BankConfig struct {
	PoolBalances map[string]string `yaml:"pool_balances"`
	Supplies     map[string]string `yaml:"supplies"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data/stakingd"
	}
	if cfg.GenesisPath == "" {
		cfg.GenesisPath = "config/pool.toml"
	}
	if cfg.LogMaxSizeMB <= 0 {
		cfg.LogMaxSizeMB = 100
	}
	if cfg.LogMaxBackups <= 0 {
		cfg.LogMaxBackups = 5
	}
	if cfg.RequestTimeout.Duration == 0 {
		cfg.RequestTimeout.Duration = 15 * time.Second
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = journal.DriverSQLite
	}
	if cfg.Bank.PoolBalances == nil {
		cfg.Bank.PoolBalances = map[string]string{}
	}
	if cfg.Bank.Supplies == nil {
		cfg.Bank.Supplies = map[string]string{}
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth hmac_secret must be configured")
	}
	if len(cfg.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth hmac_secret must be at least 32 bytes")
	}
	switch strings.ToLower(cfg.Journal.Driver) {
	case journal.DriverSQLite:
	case journal.DriverPostgres:
		if strings.TrimSpace(cfg.Journal.DSN) == "" {
			return fmt.Errorf("journal dsn must be configured for postgres")
		}
	default:
		return fmt.Errorf("unsupported journal driver %q", cfg.Journal.Driver)
	}
	for token, raw := range cfg.Bank.PoolBalances {
		if _, err := parseAmount(raw); err != nil {
			return fmt.Errorf("bank pool_balances %s: %w", token, err)
		}
	}
	for token, raw := range cfg.Bank.Supplies {
		if _, err := parseAmount(raw); err != nil {
			return fmt.Errorf("bank supplies %s: %w", token, err)
		}
	}
	return nil
}

func (a *AuthConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("auth configuration missing")
	}
	a.HMACSecret = strings.TrimSpace(a.HMACSecret)
	a.HMACSecretEnv = strings.TrimSpace(a.HMACSecretEnv)
	a.Issuer = strings.TrimSpace(a.Issuer)
	a.Audience = strings.TrimSpace(a.Audience)
	if a.HMACSecret != "" || a.HMACSecretEnv == "" {
		return nil
	}
	value := strings.TrimSpace(os.Getenv(a.HMACSecretEnv))
	if value == "" {
		return fmt.Errorf("hmac_secret_env %s is empty", a.HMACSecretEnv)
	}
	a.HMACSecret = value
	return nil
}
