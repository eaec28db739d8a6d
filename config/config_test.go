package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "portfoliumd.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.ListenAddress != DefaultListenAddress {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if !cfg.Auth.Enabled || cfg.Auth.HMACSecretEnv != DefaultSecretEnv {
		t.Fatalf("unexpected auth defaults: %+v", cfg.Auth)
	}
	if cfg.EventBuffer != DefaultEventBuffer {
		t.Fatalf("unexpected event buffer %d", cfg.EventBuffer)
	}
	if got := cfg.Worker.ApplicationKeystorePath; got != filepath.Join(filepath.Dir(path), "application.keystore") {
		t.Fatalf("unexpected keystore path %q", got)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload persisted config: %v", err)
	}
	if reloaded.GenesisFile != cfg.GenesisFile || reloaded.RateLimits["write"] != cfg.RateLimits["write"] {
		t.Fatalf("reloaded config differs: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfoliumd.toml")
	contents := `GenesisFile = "genesis.json"
DataDir = "/var/lib/portfolium"

[RateLimits.read]
RatePerSecond = 1.5
Burst = 3
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != DefaultListenAddress || cfg.Environment != "dev" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.RateLimits["read"].Burst != 3 {
		t.Fatalf("unexpected read limit %+v", cfg.RateLimits["read"])
	}
	if _, ok := cfg.RateLimits["write"]; ok {
		t.Fatalf("explicit rate limits must not be merged with defaults")
	}
	if cfg.StatePath() != filepath.Join("/var/lib/portfolium", "state") {
		t.Fatalf("unexpected state path %q", cfg.StatePath())
	}
	if cfg.EventIndexPath() != filepath.Join("/var/lib/portfolium", "events.db") {
		t.Fatalf("unexpected event index path %q", cfg.EventIndexPath())
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			GenesisFile: "genesis.json",
			RateLimits:  defaultRateLimits(),
			Worker: Worker{
				Portfolio:               "0x0303030303030303030303030303030303030303",
				ApplicationKeystorePath: "app.keystore",
				Prices:                  map[string]string{"USDX": "1.0001"},
			},
		}
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing genesis", mutate: func(c *Config) { c.GenesisFile = " " }, wantErr: "GenesisFile"},
		{name: "negative burst", mutate: func(c *Config) { c.RateLimits["read"] = RateLimit{RatePerSecond: 1, Burst: -1} }, wantErr: "RateLimits.read"},
		{name: "worker disabled skips checks", mutate: func(c *Config) { c.Worker.Portfolio = "nope" }},
		{name: "bad portfolio", mutate: func(c *Config) { c.Worker.Enabled = true; c.Worker.Portfolio = "nope" }, wantErr: "Worker.Portfolio"},
		{name: "missing keystore", mutate: func(c *Config) { c.Worker.Enabled = true; c.Worker.ApplicationKeystorePath = "" }, wantErr: "ApplicationKeystorePath"},
		{name: "bad price", mutate: func(c *Config) { c.Worker.Enabled = true; c.Worker.Prices["USDX"] = "-1" }, wantErr: "Worker.Prices.USDX"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
