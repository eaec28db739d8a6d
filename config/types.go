package config

// Auth controls bearer authentication of the daemon API. The HMAC secret is
// read from the environment variable named by HMACSecretEnv so it never lands
// in the config file.
type Auth struct {
	Enabled             bool   `toml:"Enabled"`
	HMACSecretEnv       string `toml:"HMACSecretEnv"`
	Issuer              string `toml:"Issuer"`
	Audience            string `toml:"Audience"`
	ClockSkewSeconds    uint32 `toml:"ClockSkewSeconds"`
	AllowAnonymousReads bool   `toml:"AllowAnonymousReads"`
}

// RateLimit bounds requests per client for one route group.
type RateLimit struct {
	RatePerSecond float64 `toml:"RatePerSecond"`
	Burst         int     `toml:"Burst"`
}

// CORS lists the browser origins allowed to call the API.
type CORS struct {
	AllowedOrigins []string `toml:"AllowedOrigins"`
}

// Worker configures the embedded fund worker. The application key signs the
// worker's calls and must be the application account of the genesis spec.
type Worker struct {
	Enabled                 bool              `toml:"Enabled"`
	Portfolio               string            `toml:"Portfolio"`
	ApplicationKeystorePath string            `toml:"ApplicationKeystorePath"`
	PassphraseEnv           string            `toml:"PassphraseEnv"`
	RebalanceSeconds        uint32            `toml:"RebalanceSeconds"`
	PricePushSeconds        uint32            `toml:"PricePushSeconds"`
	SettlementDelaySeconds  uint32            `toml:"SettlementDelaySeconds"`
	DisableOrders           bool              `toml:"DisableOrders"`
	Prices                  map[string]string `toml:"Prices"`
}
