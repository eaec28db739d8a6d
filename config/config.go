package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddress = ":8080"
	DefaultDataDir       = "./portfolium-data"
	DefaultEventBuffer   = 1024
	DefaultSecretEnv     = "PORTFOLIUM_JWT_SECRET"
	DefaultPassphraseEnv = "PORTFOLIUM_APP_PASSPHRASE"
)

// Config is the configuration of the portfoliumd ledger daemon.
type Config struct {
	ListenAddress          string               `toml:"ListenAddress"`
	DataDir                string               `toml:"DataDir"`
	GenesisFile            string               `toml:"GenesisFile"`
	Environment            string               `toml:"Environment"`
	EventIndexDSN          string               `toml:"EventIndexDSN"`
	EventBuffer            int                  `toml:"EventBuffer"`
	ShutdownTimeoutSeconds uint32               `toml:"ShutdownTimeoutSeconds"`
	Auth                   Auth                 `toml:"Auth"`
	RateLimits             map[string]RateLimit `toml:"RateLimits"`
	CORS                   CORS                 `toml:"CORS"`
	Worker                 Worker               `toml:"Worker"`
}

// Load loads the configuration from the given path. A missing file is
// created with the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.ShutdownTimeoutSeconds == 0 {
		cfg.ShutdownTimeoutSeconds = 10
	}
	if strings.TrimSpace(cfg.Auth.HMACSecretEnv) == "" {
		cfg.Auth.HMACSecretEnv = DefaultSecretEnv
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = defaultRateLimits()
	}
	if cfg.CORS.AllowedOrigins == nil {
		cfg.CORS.AllowedOrigins = []string{}
	}
	if strings.TrimSpace(cfg.Worker.PassphraseEnv) == "" {
		cfg.Worker.PassphraseEnv = DefaultPassphraseEnv
	}
}

func defaultRateLimits() map[string]RateLimit {
	return map[string]RateLimit{
		"read":  {RatePerSecond: 20, Burst: 40},
		"write": {RatePerSecond: 5, Burst: 10},
	}
}

// EventIndexPath is the SQLite file used when no EventIndexDSN is configured.
func (c *Config) EventIndexPath() string {
	return filepath.Join(c.DataDir, "events.db")
}

// StatePath is the LevelDB directory holding the ledger state.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: DefaultListenAddress,
		DataDir:       DefaultDataDir,
		GenesisFile:   "genesis.json",
		Environment:   "dev",
		Auth: Auth{
			Enabled:             true,
			HMACSecretEnv:       DefaultSecretEnv,
			Issuer:              "portfolium",
			Audience:            "portfoliumd",
			ClockSkewSeconds:    30,
			AllowAnonymousReads: true,
		},
		RateLimits: defaultRateLimits(),
		Worker: Worker{
			ApplicationKeystorePath: defaultKeystorePath(path),
			PassphraseEnv:           DefaultPassphraseEnv,
			Prices:                  map[string]string{},
		},
	}
	applyDefaults(cfg)

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

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "application.keystore")
}
