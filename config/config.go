// Package config resolves runtime configuration for storefrontd from a YAML
// file with environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
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

// Environment variables that override file-sourced secrets.
const (
	envExplorerAPIKey = "BOTSTORE_EXPLORER_API_KEY"
	envGitHubToken    = "BOTSTORE_GITHUB_TOKEN"
	envSweepSecret    = "BOTSTORE_SWEEP_SECRET"
	envRPCURL         = "BOTSTORE_RPC_URL"
)

// Config captures runtime configuration for storefrontd.
type Config struct {
	ListenAddress string       `yaml:"listen"`
	DatabasePath  string       `yaml:"database"`
	Environment   string       `yaml:"environment"`
	Chain         ChainConfig  `yaml:"chain"`
	Sweep         SweepConfig  `yaml:"sweep"`
	Verify        VerifyConfig `yaml:"verify"`
	GitHub        GitHubConfig `yaml:"github"`
}

// ChainConfig describes the observed chain and the read endpoints.
type ChainConfig struct {
	Recipient       string   `yaml:"recipient"`
	RPCURL          string   `yaml:"rpc_url"`
	ExplorerURL     string   `yaml:"explorer_url"`
	ExplorerAPIKey  string   `yaml:"explorer_api_key"`
	ReceiptAttempts int      `yaml:"receipt_attempts"`
	ReceiptDelay    Duration `yaml:"receipt_delay"`
}

// SweepConfig tunes the scheduled reconciliation batch.
type SweepConfig struct {
	MinConfirmations uint64   `yaml:"min_confirmations"`
	MaxOrders        int      `yaml:"max_orders"`
	PaymentWindow    Duration `yaml:"payment_window"`
	BackwardSlack    Duration `yaml:"backward_slack"`
	Secret           string   `yaml:"secret"`
}

// VerifyConfig tunes the on-demand directed check.
type VerifyConfig struct {
	MinConfirmations uint64 `yaml:"min_confirmations"`
}

// GitHubConfig describes the access-grant collaborator.
type GitHubConfig struct {
	APIURL string `yaml:"api_url"`
	Token  string `yaml:"token"`
}

// RecipientAddress returns the configured receiving address.
func (c ChainConfig) RecipientAddress() common.Address {
	return common.HexToAddress(c.Recipient)
}

// Load reads configuration from the supplied path, applies environment
// overrides, fills defaults, and validates required fields.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envExplorerAPIKey)); v != "" {
		c.Chain.ExplorerAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envGitHubToken)); v != "" {
		c.GitHub.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(envSweepSecret)); v != "" {
		c.Sweep.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv(envRPCURL)); v != "" {
		c.Chain.RPCURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "storefront.db"
	}
	if c.Chain.ExplorerURL == "" {
		c.Chain.ExplorerURL = "https://api.bscscan.com/api"
	}
	if c.Chain.ReceiptAttempts <= 0 {
		c.Chain.ReceiptAttempts = 5
	}
	if c.Chain.ReceiptDelay.Duration <= 0 {
		c.Chain.ReceiptDelay.Duration = 6 * time.Second
	}
	if c.Sweep.MinConfirmations == 0 {
		c.Sweep.MinConfirmations = 15
	}
	if c.Sweep.MaxOrders <= 0 {
		c.Sweep.MaxOrders = 20
	}
	if c.Sweep.PaymentWindow.Duration <= 0 {
		c.Sweep.PaymentWindow.Duration = 72 * time.Hour
	}
	if c.Sweep.BackwardSlack.Duration <= 0 {
		c.Sweep.BackwardSlack.Duration = 10 * time.Minute
	}
	if c.Verify.MinConfirmations == 0 {
		c.Verify.MinConfirmations = 5
	}
	if c.GitHub.APIURL == "" {
		c.GitHub.APIURL = "https://api.github.com"
	}
}

// Validate reports missing or malformed required configuration. Startup must
// fail here rather than letting individual requests discover the problem.
func (c Config) Validate() error {
	if !common.IsHexAddress(strings.TrimSpace(c.Chain.Recipient)) {
		return fmt.Errorf("chain.recipient %q is not a valid address", c.Chain.Recipient)
	}
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is required (or set %s)", envRPCURL)
	}
	if strings.TrimSpace(c.GitHub.Token) == "" {
		return fmt.Errorf("github.token is required (or set %s)", envGitHubToken)
	}
	if strings.TrimSpace(c.Sweep.Secret) == "" {
		return fmt.Errorf("sweep.secret is required (or set %s)", envSweepSecret)
	}
	return nil
}
