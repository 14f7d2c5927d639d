package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ipchain/crypto"
)

var testOperatorAddr = func() string {
	var raw [20]byte
	raw[0] = 0x51
	raw[19] = 0x15
	return crypto.NewAddress(crypto.IPPrefix, raw[:]).String()
}()

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, fmt.Sprintf(`
operator: %s
auth:
  issuer: ipchain
  audience:
    - royalty-gateway
`, testOperatorAddr))

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.DatabasePath != "royalty-gateway.sqlite" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.Node.URL != "http://127.0.0.1:8545" {
		t.Fatalf("unexpected node url %q", cfg.Node.URL)
	}
	if cfg.Node.Timeout.Duration != 15*time.Second {
		t.Fatalf("unexpected node timeout %s", cfg.Node.Timeout.Duration)
	}
	if cfg.Auth.MaxSkewSeconds != 60 {
		t.Fatalf("unexpected max skew %d", cfg.Auth.MaxSkewSeconds)
	}
	if cfg.Rate.RequestsPerMinute != 60 || cfg.Rate.Burst != 10 {
		t.Fatalf("unexpected rate defaults %+v", cfg.Rate)
	}
	if cfg.Recon.Window.Duration != 24*time.Hour {
		t.Fatalf("unexpected recon window %s", cfg.Recon.Window.Duration)
	}
	if cfg.Recon.RunHour != 1 || cfg.Recon.RunMinute != 5 {
		t.Fatalf("unexpected recon schedule %d:%d", cfg.Recon.RunHour, cfg.Recon.RunMinute)
	}
}

func TestLoadConfigParsesFullFile(t *testing.T) {
	path := writeConfigFile(t, fmt.Sprintf(`
listen: ":9090"
database: /tmp/royalty.sqlite
operator: %s
node:
  url: http://node.internal:8545
  auth_token_env: NODE_TOKEN
  timeout: 30s
auth:
  issuer: ipchain-prod
  audience:
    - royalty-gateway
    - royalty-ops
  secret_env: GATEWAY_SECRET
  max_skew_seconds: 120
rate:
  requests_per_minute: 240
  burst: 40
recon:
  output_dir: /var/lib/royalty/recon
  window: 48h
  run_hour: 3
  run_minute: 30
  dry_run: true
`, testOperatorAddr))

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":9090" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Node.URL != "http://node.internal:8545" || cfg.Node.AuthTokenEnv != "NODE_TOKEN" {
		t.Fatalf("unexpected node config %+v", cfg.Node)
	}
	if cfg.Node.Timeout.Duration != 30*time.Second {
		t.Fatalf("unexpected node timeout %s", cfg.Node.Timeout.Duration)
	}
	if cfg.Auth.Issuer != "ipchain-prod" || len(cfg.Auth.Audience) != 2 {
		t.Fatalf("unexpected auth config %+v", cfg.Auth)
	}
	if cfg.Auth.SecretEnv != "GATEWAY_SECRET" || cfg.Auth.MaxSkewSeconds != 120 {
		t.Fatalf("unexpected auth config %+v", cfg.Auth)
	}
	if cfg.Rate.RequestsPerMinute != 240 || cfg.Rate.Burst != 40 {
		t.Fatalf("unexpected rate config %+v", cfg.Rate)
	}
	if cfg.Recon.Window.Duration != 48*time.Hour {
		t.Fatalf("unexpected recon window %s", cfg.Recon.Window.Duration)
	}
	if cfg.Recon.RunHour != 3 || cfg.Recon.RunMinute != 30 || !cfg.Recon.DryRun {
		t.Fatalf("unexpected recon config %+v", cfg.Recon)
	}
}

func TestLoadConfigRejectsMissingOperator(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  issuer: ipchain
  audience:
    - royalty-gateway
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing operator")
	}
}

func TestLoadConfigRejectsMalformedOperator(t *testing.T) {
	path := writeConfigFile(t, `
operator: ip1notanaddress
auth:
  issuer: ipchain
  audience:
    - royalty-gateway
`)
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for malformed operator")
	}
	if !strings.Contains(err.Error(), "operator") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfigRejectsBadSchedule(t *testing.T) {
	path := writeConfigFile(t, fmt.Sprintf(`
operator: %s
auth:
  issuer: ipchain
  audience:
    - royalty-gateway
recon:
  run_hour: 26
`, testOperatorAddr))
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for out-of-range run_hour")
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	path := writeConfigFile(t, fmt.Sprintf(`
operator: %s
auth:
  issuer: ipchain
  audience:
    - royalty-gateway
node:
  timeout: not-a-duration
`, testOperatorAddr))
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
