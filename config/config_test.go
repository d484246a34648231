package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
chain:
  recipient: "0x2222222222222222222222222222222222222222"
  rpc_url: "https://bsc-dataseed.binance.org"
github:
  token: "ghp_test"
sweep:
  secret: "sweep-secret"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("listen = %q", cfg.ListenAddress)
	}
	if cfg.DatabasePath != "storefront.db" {
		t.Fatalf("database = %q", cfg.DatabasePath)
	}
	if cfg.Chain.ExplorerURL != "https://api.bscscan.com/api" {
		t.Fatalf("explorer url = %q", cfg.Chain.ExplorerURL)
	}
	if cfg.Chain.ReceiptAttempts != 5 || cfg.Chain.ReceiptDelay.Duration != 6*time.Second {
		t.Fatalf("receipt retry = %d/%s", cfg.Chain.ReceiptAttempts, cfg.Chain.ReceiptDelay.Duration)
	}
	if cfg.Sweep.MinConfirmations != 15 || cfg.Sweep.MaxOrders != 20 {
		t.Fatalf("sweep defaults = %d/%d", cfg.Sweep.MinConfirmations, cfg.Sweep.MaxOrders)
	}
	if cfg.Sweep.PaymentWindow.Duration != 72*time.Hour || cfg.Sweep.BackwardSlack.Duration != 10*time.Minute {
		t.Fatalf("sweep window = %s/%s", cfg.Sweep.PaymentWindow.Duration, cfg.Sweep.BackwardSlack.Duration)
	}
	if cfg.Verify.MinConfirmations != 5 {
		t.Fatalf("verify confirmations = %d", cfg.Verify.MinConfirmations)
	}
	if cfg.GitHub.APIURL != "https://api.github.com" {
		t.Fatalf("github api = %q", cfg.GitHub.APIURL)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
listen: ":9090"
database: "/var/lib/botstore/orders.db"
environment: "production"
chain:
  recipient: "0x2222222222222222222222222222222222222222"
  rpc_url: "https://bsc-dataseed.binance.org"
  explorer_url: "https://api.etherscan.io/api"
  receipt_attempts: 8
  receipt_delay: "3s"
sweep:
  secret: "sweep-secret"
  min_confirmations: 30
  max_orders: 50
  payment_window: "24h"
  backward_slack: "5m"
verify:
  min_confirmations: 12
github:
  token: "ghp_test"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9090" || cfg.Environment != "production" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Chain.ReceiptAttempts != 8 || cfg.Chain.ReceiptDelay.Duration != 3*time.Second {
		t.Fatalf("receipt retry = %d/%s", cfg.Chain.ReceiptAttempts, cfg.Chain.ReceiptDelay.Duration)
	}
	if cfg.Sweep.MinConfirmations != 30 || cfg.Sweep.PaymentWindow.Duration != 24*time.Hour {
		t.Fatalf("sweep = %+v", cfg.Sweep)
	}
	if cfg.Verify.MinConfirmations != 12 {
		t.Fatalf("verify = %+v", cfg.Verify)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("BOTSTORE_GITHUB_TOKEN", "ghp_from_env")
	t.Setenv("BOTSTORE_SWEEP_SECRET", "secret_from_env")
	t.Setenv("BOTSTORE_RPC_URL", "https://rpc.from.env")
	t.Setenv("BOTSTORE_EXPLORER_API_KEY", "key_from_env")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GitHub.Token != "ghp_from_env" {
		t.Fatalf("github token = %q", cfg.GitHub.Token)
	}
	if cfg.Sweep.Secret != "secret_from_env" {
		t.Fatalf("sweep secret = %q", cfg.Sweep.Secret)
	}
	if cfg.Chain.RPCURL != "https://rpc.from.env" {
		t.Fatalf("rpc url = %q", cfg.Chain.RPCURL)
	}
	if cfg.Chain.ExplorerAPIKey != "key_from_env" {
		t.Fatalf("explorer key = %q", cfg.Chain.ExplorerAPIKey)
	}
}

func TestValidateRejectsBadRecipient(t *testing.T) {
	_, err := Load(writeConfig(t, strings.Replace(minimalConfig,
		"0x2222222222222222222222222222222222222222", "not-an-address", 1)))
	if err == nil || !strings.Contains(err.Error(), "chain.recipient") {
		t.Fatalf("expected recipient validation error, got %v", err)
	}
}

func TestValidateRequiresSecrets(t *testing.T) {
	cases := map[string]string{
		"chain.rpc_url": `
chain:
  recipient: "0x2222222222222222222222222222222222222222"
github:
  token: "ghp_test"
sweep:
  secret: "sweep-secret"
`,
		"github.token": `
chain:
  recipient: "0x2222222222222222222222222222222222222222"
  rpc_url: "https://bsc-dataseed.binance.org"
sweep:
  secret: "sweep-secret"
`,
		"sweep.secret": `
chain:
  recipient: "0x2222222222222222222222222222222222222222"
  rpc_url: "https://bsc-dataseed.binance.org"
github:
  token: "ghp_test"
`,
	}
	for want, contents := range cases {
		t.Run(want, func(t *testing.T) {
			_, err := Load(writeConfig(t, contents))
			if err == nil || !strings.Contains(err.Error(), want) {
				t.Fatalf("expected %s error, got %v", want, err)
			}
		})
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"\nunknown_field: true\n"))
	if err == nil {
		t.Fatal("expected decode error for unknown field")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
chain:
  recipient: "0x2222222222222222222222222222222222222222"
  rpc_url: "https://bsc-dataseed.binance.org"
  receipt_delay: "soon"
github:
  token: "ghp_test"
sweep:
  secret: "sweep-secret"
`))
	if err == nil || !strings.Contains(err.Error(), "parse duration") {
		t.Fatalf("expected duration parse error, got %v", err)
	}
}
