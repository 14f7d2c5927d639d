package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ipchain/crypto"
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
	raw := value.Value
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

// Config captures runtime configuration for the royalty gateway.
type Config struct {
	ListenAddress string      `yaml:"listen"`
	DatabasePath  string      `yaml:"database"`
	Operator      string      `yaml:"operator"`
	Node          NodeConfig  `yaml:"node"`
	Auth          AuthConfig  `yaml:"auth"`
	Rate          RateConfig  `yaml:"rate"`
	Recon         ReconConfig `yaml:"recon"`
}

// NodeConfig locates the registry node the gateway submits operations to.
type NodeConfig struct {
	URL          string   `yaml:"url"`
	AuthTokenEnv string   `yaml:"auth_token_env"`
	Timeout      Duration `yaml:"timeout"`
}

// AuthConfig controls JWT verification for inbound requests.
type AuthConfig struct {
	Issuer         string   `yaml:"issuer"`
	Audience       []string `yaml:"audience"`
	SecretEnv      string   `yaml:"secret_env"`
	MaxSkewSeconds int      `yaml:"max_skew_seconds"`
}

// RateConfig throttles payment submission per client.
type RateConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// ReconConfig tunes the nightly reconciliation export.
type ReconConfig struct {
	OutputDir string   `yaml:"output_dir"`
	Window    Duration `yaml:"window"`
	RunHour   int      `yaml:"run_hour"`
	RunMinute int      `yaml:"run_minute"`
	DryRun    bool     `yaml:"dry_run"`
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
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "royalty-gateway.sqlite"
	}
	if cfg.Node.URL == "" {
		cfg.Node.URL = "http://127.0.0.1:8545"
	}
	if cfg.Node.AuthTokenEnv == "" {
		cfg.Node.AuthTokenEnv = "IPCHAIN_RPC_TOKEN"
	}
	if cfg.Node.Timeout.Duration == 0 {
		cfg.Node.Timeout.Duration = 15 * time.Second
	}
	if cfg.Auth.SecretEnv == "" {
		cfg.Auth.SecretEnv = "ROYALTY_GATEWAY_JWT_SECRET"
	}
	if cfg.Auth.MaxSkewSeconds <= 0 {
		cfg.Auth.MaxSkewSeconds = 60
	}
	if cfg.Rate.RequestsPerMinute <= 0 {
		cfg.Rate.RequestsPerMinute = 60
	}
	if cfg.Rate.Burst <= 0 {
		cfg.Rate.Burst = 10
	}
	if cfg.Recon.OutputDir == "" {
		cfg.Recon.OutputDir = "ipchain-data/recon"
	}
	if cfg.Recon.Window.Duration == 0 {
		cfg.Recon.Window.Duration = 24 * time.Hour
	}
	if cfg.Recon.RunHour == 0 && cfg.Recon.RunMinute == 0 {
		cfg.Recon.RunHour = 1
		cfg.Recon.RunMinute = 5
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Operator) == "" {
		return fmt.Errorf("operator address must be configured")
	}
	if _, err := crypto.DecodeAddress(strings.TrimSpace(cfg.Operator)); err != nil {
		return fmt.Errorf("invalid operator address: %w", err)
	}
	if strings.TrimSpace(cfg.Auth.Issuer) == "" {
		return fmt.Errorf("auth issuer must be configured")
	}
	if len(cfg.Auth.Audience) == 0 {
		return fmt.Errorf("at least one auth audience must be configured")
	}
	if cfg.Recon.RunHour < 0 || cfg.Recon.RunHour > 23 {
		return fmt.Errorf("recon run_hour must be within 0..23")
	}
	if cfg.Recon.RunMinute < 0 || cfg.Recon.RunMinute > 59 {
		return fmt.Errorf("recon run_minute must be within 0..59")
	}
	return nil
}
