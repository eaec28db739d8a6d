package fundworker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"portfolium/crypto"
)

const (
	defaultPort             = 3000
	defaultRPCURL           = "https://polygon-rpc.com"
	defaultRebalanceEvery   = 30 * time.Second
	defaultPricePushEvery   = 2 * time.Minute
	defaultSettlementDelay  = 5 * time.Second
	defaultRebalanceGas     = 2_000_000
	defaultPricePushGas     = 200_000
	defaultOrderGas         = 200_000
	defaultGasMarginPercent = 5
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

// Config captures the runtime configuration of the fund worker.
type Config struct {
	Port        int               `yaml:"port"`
	Web3        Web3Config        `yaml:"web3"`
	Contracts   ContractConfig    `yaml:"contracts"`
	Application ApplicationConfig `yaml:"application"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Gas         GasConfig         `yaml:"gas"`
	PriceSource PriceSourceConfig `yaml:"price_source"`
	NonceDB     string            `yaml:"nonce_db"`
	QuoteDB     string            `yaml:"quote_db"`
}

// Web3Config points the worker at an EVM JSON-RPC endpoint. Order
// fulfilment needs a websocket endpoint for log subscriptions.
type Web3Config struct {
	URL     string `yaml:"url"`
	ChainID int64  `yaml:"chain_id"`
}

// ContractConfig lists the deployed contract addresses.
type ContractConfig struct {
	Fund     string `yaml:"fund"`
	Oracle   string `yaml:"oracle"`
	Treasury string `yaml:"treasury"`
}

// ApplicationConfig describes the application signer key.
type ApplicationConfig struct {
	Address        string `yaml:"address"`
	SignerKey      string `yaml:"signer_key"`
	SignerKeyFile  string `yaml:"signer_key_file"`
	SignerKeyEnv   string `yaml:"signer_key_env"`
	Keystore       string `yaml:"keystore"`
	PassphraseEnv  string `yaml:"passphrase_env"`
	PassphraseFile string `yaml:"passphrase_file"`

	key *crypto.PrivateKey
}

// ScheduleConfig controls how often the periodic tasks run.
type ScheduleConfig struct {
	Rebalance       Duration `yaml:"rebalance"`
	PricePush       Duration `yaml:"price_push"`
	SettlementDelay Duration `yaml:"settlement_delay"`
	DisableOrders   bool     `yaml:"disable_orders"`
}

// GasConfig holds the limits used when estimation fails.
type GasConfig struct {
	Rebalance     uint64 `yaml:"rebalance"`
	PricePush     uint64 `yaml:"price_push"`
	Orders        uint64 `yaml:"orders"`
	MarginPercent uint64 `yaml:"margin_percent"`
}

// PriceSourceConfig selects where external quotes come from.
type PriceSourceConfig struct {
	Type              string            `yaml:"type"`
	Endpoint          string            `yaml:"endpoint"`
	VsCurrency        string            `yaml:"vs_currency"`
	Assets            map[string]string `yaml:"assets"`
	Prices            map[string]string `yaml:"prices"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Timeout           Duration          `yaml:"timeout"`
}

// LoadConfig reads configuration from the supplied path. An empty path
// configures the worker from defaults and the environment only.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Application.normalise(); err != nil {
		return cfg, fmt.Errorf("application signer: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.Web3.URL) == "" {
		cfg.Web3.URL = defaultRPCURL
	}
	if cfg.Schedule.Rebalance.Duration == 0 {
		cfg.Schedule.Rebalance.Duration = defaultRebalanceEvery
	}
	if cfg.Schedule.PricePush.Duration == 0 {
		cfg.Schedule.PricePush.Duration = defaultPricePushEvery
	}
	if cfg.Schedule.SettlementDelay.Duration == 0 {
		cfg.Schedule.SettlementDelay.Duration = defaultSettlementDelay
	}
	if cfg.Gas.Rebalance == 0 {
		cfg.Gas.Rebalance = defaultRebalanceGas
	}
	if cfg.Gas.PricePush == 0 {
		cfg.Gas.PricePush = defaultPricePushGas
	}
	if cfg.Gas.Orders == 0 {
		cfg.Gas.Orders = defaultOrderGas
	}
	if cfg.Gas.MarginPercent == 0 {
		cfg.Gas.MarginPercent = defaultGasMarginPercent
	}
	if strings.TrimSpace(cfg.PriceSource.Type) == "" {
		cfg.PriceSource.Type = "static"
	}
	if cfg.PriceSource.Timeout.Duration == 0 {
		cfg.PriceSource.Timeout.Duration = 10 * time.Second
	}
	if cfg.NonceDB == "" {
		cfg.NonceDB = "fundworker-nonces.db"
	}
	if cfg.QuoteDB == "" {
		cfg.QuoteDB = "fundworker-quotes.db"
	}
}

// applyEnv lets the FUNDY_* environment override the file.
func applyEnv(cfg *Config, getenv func(string) string) error {
	lookup := func(key string) (string, bool) {
		value := strings.TrimSpace(getenv(key))
		return value, value != ""
	}
	if value, ok := lookup("FUNDY_WEB3_NODE_URL"); ok {
		cfg.Web3.URL = value
	}
	if value, ok := lookup("FUNDY_FUND_CONTRACT_ADDRESS"); ok {
		cfg.Contracts.Fund = value
	}
	if value, ok := lookup("FUNDY_FUND_ORACLE_ADDRESS"); ok {
		cfg.Contracts.Oracle = value
	}
	if value, ok := lookup("FUNDY_FUND_TREASURY_ADDRESS"); ok {
		cfg.Contracts.Treasury = value
	}
	if value, ok := lookup("FUNDY_FUND_APPLICATION_PK"); ok {
		cfg.Application.SignerKey = value
	}
	if value, ok := lookup("FUNDY_FUND_APPLICATION_ADDRESS"); ok {
		cfg.Application.Address = value
	}
	if value, ok := lookup("FUNDY_APP_PORT"); ok {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("FUNDY_APP_PORT: %w", err)
		}
		cfg.Port = port
	}
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	for name, value := range map[string]string{
		"contracts.fund":   cfg.Contracts.Fund,
		"contracts.oracle": cfg.Contracts.Oracle,
	} {
		if !common.IsHexAddress(strings.TrimSpace(value)) {
			return fmt.Errorf("%s must be a hex address", name)
		}
	}
	if treasury := strings.TrimSpace(cfg.Contracts.Treasury); treasury != "" && !common.IsHexAddress(treasury) {
		return fmt.Errorf("contracts.treasury must be a hex address")
	}
	if cfg.Application.key == nil {
		return fmt.Errorf("application signer key must be configured")
	}
	if raw := strings.TrimSpace(cfg.Application.Address); raw != "" {
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("application.address must be a hex address")
		}
		if common.HexToAddress(raw) != cfg.Application.From() {
			return fmt.Errorf("application.address does not match the signer key")
		}
	}
	if cfg.Gas.MarginPercent > 100 {
		return fmt.Errorf("gas.margin_percent must be at most 100")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.PriceSource.Type)) {
	case "static", "coingecko":
	default:
		return fmt.Errorf("unknown price source %q", cfg.PriceSource.Type)
	}
	return nil
}

func (a *ApplicationConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("application configuration missing")
	}
	a.SignerKey = strings.TrimSpace(a.SignerKey)
	a.SignerKeyEnv = strings.TrimSpace(a.SignerKeyEnv)
	a.SignerKeyFile = strings.TrimSpace(a.SignerKeyFile)
	a.Keystore = strings.TrimSpace(a.Keystore)
	switch {
	case a.SignerKey != "":
	case a.SignerKeyEnv != "":
		value := strings.TrimSpace(os.Getenv(a.SignerKeyEnv))
		if value == "" {
			return fmt.Errorf("signer_key_env %s is empty", a.SignerKeyEnv)
		}
		a.SignerKey = value
	case a.SignerKeyFile != "":
		contents, err := os.ReadFile(a.SignerKeyFile)
		if err != nil {
			return fmt.Errorf("read signer_key_file: %w", err)
		}
		a.SignerKey = strings.TrimSpace(string(contents))
	case a.Keystore != "":
		var want [20]byte
		if raw := strings.TrimSpace(a.Address); common.IsHexAddress(raw) {
			want = common.HexToAddress(raw)
		}
		key, err := crypto.UnlockKeystore(a.Keystore, want, a.passphrase)
		if err != nil {
			return fmt.Errorf("load keystore: %w", err)
		}
		a.key = key
		return nil
	default:
		return fmt.Errorf("signer_key is required")
	}
	key, err := crypto.PrivateKeyFromHex(a.SignerKey)
	if err != nil {
		return err
	}
	a.key = key
	return nil
}

func (a *ApplicationConfig) passphrase() (string, error) {
	if env := strings.TrimSpace(a.PassphraseEnv); env != "" {
		return os.Getenv(env), nil
	}
	if path := strings.TrimSpace(a.PassphraseFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read passphrase_file: %w", err)
		}
		return strings.TrimRight(string(contents), "\r\n"), nil
	}
	return "", fmt.Errorf("keystore requires passphrase_env or passphrase_file")
}

// Key returns the decoded application signer key.
func (a ApplicationConfig) Key() *crypto.PrivateKey { return a.key }

// From returns the account of the application signer.
func (a ApplicationConfig) From() common.Address {
	if a.key == nil {
		return common.Address{}
	}
	return common.Address(a.key.PubKey().Address().Account())
}
