package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"ipchain/core"
	"ipchain/crypto"
	"ipchain/native/royalty"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	MetricsAddress       string `toml:"MetricsAddress"`
	DataDir              string `toml:"DataDir"`
	NetworkName          string `toml:"NetworkName"`
	LogEnvironment       string `toml:"LogEnvironment"`
	LogFile              string `toml:"LogFile,omitempty"`
	RPCAuthToken         string `toml:"RPCAuthToken,omitempty"`
	RPCTrustProxyHeaders bool   `toml:"RPCTrustProxyHeaders"`

	Genesis GenesisConfig `toml:"genesis"`
}

// GenesisConfig seeds the royalty state on the first start of a data
// directory. Addresses are bech32 strings; amounts are decimal base units.
type GenesisConfig struct {
	Admins                 []string        `toml:"Admins"`
	LicensingModule        string          `toml:"LicensingModule"`
	LAPPolicy              string          `toml:"LAPPolicy"`
	Tokens                 []string        `toml:"Tokens"`
	MaxParents             uint64          `toml:"MaxParents"`
	MaxAncestors           uint64          `toml:"MaxAncestors"`
	MaxAccumulatedPolicies uint64          `toml:"MaxAccumulatedPolicies"`
	SnapshotIntervalSecs   int64           `toml:"SnapshotIntervalSecs"`
	Balances               []BalanceConfig `toml:"Balances"`
}

type BalanceConfig struct {
	Token   string `toml:"Token"`
	Account string `toml:"Account"`
	Amount  string `toml:"Amount"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "ipchain-local"
	}
	if strings.TrimSpace(cfg.LogEnvironment) == "" {
		cfg.LogEnvironment = "local"
	}
	if cfg.Genesis.Admins == nil {
		cfg.Genesis.Admins = []string{}
	}
	if cfg.Genesis.Tokens == nil {
		cfg.Genesis.Tokens = []string{}
	}

	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     ":8545",
		MetricsAddress: ":9464",
		DataDir:        "./ipchain-data",
		NetworkName:    "ipchain-local",
		LogEnvironment: "local",
		Genesis: GenesisConfig{
			Admins: []string{},
			Tokens: []string{},
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks the parts of the configuration the node cannot start
// without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir is required")
	}
	if c.Genesis.SnapshotIntervalSecs < 0 {
		return fmt.Errorf("genesis: SnapshotIntervalSecs must not be negative")
	}
	someLimit := c.Genesis.MaxParents != 0 || c.Genesis.MaxAncestors != 0 || c.Genesis.MaxAccumulatedPolicies != 0
	allLimits := c.Genesis.MaxParents != 0 && c.Genesis.MaxAncestors != 0 && c.Genesis.MaxAccumulatedPolicies != 0
	if someLimit && !allLimits {
		return fmt.Errorf("genesis: graph limits must be set together or not at all")
	}
	if _, err := c.GenesisSpec(); err != nil {
		return err
	}
	return nil
}

// GenesisSpec converts the configured genesis document into the runtime form
// consumed by core.Node.Bootstrap.
func (c *Config) GenesisSpec() (core.Genesis, error) {
	genesis := core.Genesis{
		SnapshotInterval: c.Genesis.SnapshotIntervalSecs,
	}

	admins, err := decodeAddressList(c.Genesis.Admins)
	if err != nil {
		return core.Genesis{}, fmt.Errorf("genesis: invalid admin: %w", err)
	}
	genesis.Admins = admins

	if value := strings.TrimSpace(c.Genesis.LicensingModule); value != "" {
		addr, err := decodeAddress(value)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("genesis: invalid LicensingModule: %w", err)
		}
		genesis.LicensingModule = addr
	}
	if value := strings.TrimSpace(c.Genesis.LAPPolicy); value != "" {
		addr, err := decodeAddress(value)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("genesis: invalid LAPPolicy: %w", err)
		}
		genesis.LAPPolicy = addr
	}

	tokens, err := decodeAddressList(c.Genesis.Tokens)
	if err != nil {
		return core.Genesis{}, fmt.Errorf("genesis: invalid token: %w", err)
	}
	genesis.Tokens = tokens

	if c.Genesis.MaxParents != 0 {
		genesis.GraphLimits = &royalty.GraphLimits{
			MaxParents:             c.Genesis.MaxParents,
			MaxAncestors:           c.Genesis.MaxAncestors,
			MaxAccumulatedPolicies: c.Genesis.MaxAccumulatedPolicies,
		}
	}

	for i, balance := range c.Genesis.Balances {
		token, err := decodeAddress(balance.Token)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("genesis: balance %d token: %w", i, err)
		}
		account, err := decodeAddress(balance.Account)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("genesis: balance %d account: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(balance.Amount), 10)
		if !ok || amount.Sign() < 0 {
			return core.Genesis{}, fmt.Errorf("genesis: balance %d has invalid amount %q", i, balance.Amount)
		}
		genesis.Balances = append(genesis.Balances, core.GenesisBalance{
			Token:   token,
			Account: account,
			Amount:  amount,
		})
	}

	return genesis, nil
}

func decodeAddress(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func decodeAddressList(values []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(values))
	for _, value := range values {
		decoded, err := decodeAddress(value)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", value, err)
		}
		out = append(out, decoded)
	}
	return out, nil
}
