package fundworker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"portfolium/crypto"
)

const testSignerHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fundworker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func signerAddress(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.PrivateKeyFromHex(testSignerHex)
	require.NoError(t, err)
	return common.Address(key.PubKey().Address().Account())
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
contracts:
  fund: "0x00000000000000000000000000000000000000f1"
  oracle: "0x00000000000000000000000000000000000000f2"
application:
  signer_key: "0x`+testSignerHex+`"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, defaultPort, cfg.Port)
	require.Equal(t, defaultRPCURL, cfg.Web3.URL)
	require.Equal(t, 30*time.Second, cfg.Schedule.Rebalance.Duration)
	require.Equal(t, 2*time.Minute, cfg.Schedule.PricePush.Duration)
	require.Equal(t, uint64(2_000_000), cfg.Gas.Rebalance)
	require.Equal(t, uint64(5), cfg.Gas.MarginPercent)
	require.Equal(t, "static", cfg.PriceSource.Type)
	require.Equal(t, signerAddress(t), cfg.Application.From())
	require.NotNil(t, cfg.Application.Key())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("FUNDY_WEB3_NODE_URL", "wss://rpc.example/ws")
	t.Setenv("FUNDY_FUND_CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000a1")
	t.Setenv("FUNDY_FUND_ORACLE_ADDRESS", "0x00000000000000000000000000000000000000a2")
	t.Setenv("FUNDY_FUND_APPLICATION_PK", testSignerHex)
	t.Setenv("FUNDY_FUND_APPLICATION_ADDRESS", signerAddress(t).Hex())
	t.Setenv("FUNDY_APP_PORT", "8088")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "wss://rpc.example/ws", cfg.Web3.URL)
	require.Equal(t, 8088, cfg.Port)
	require.Equal(t, "0x00000000000000000000000000000000000000a1", cfg.Contracts.Fund)
	require.Equal(t, signerAddress(t), cfg.Application.From())
}

func TestApplyEnvRejectsBadPort(t *testing.T) {
	cfg := Config{}
	err := applyEnv(&cfg, func(key string) string {
		if key == "FUNDY_APP_PORT" {
			return "eighty"
		}
		return ""
	})
	require.Error(t, err)
}

func TestLoadConfigSignerKeyFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "app.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(testSignerHex+"\n"), 0o600))
	path := writeConfig(t, `
contracts:
  fund: "0x00000000000000000000000000000000000000f1"
  oracle: "0x00000000000000000000000000000000000000f2"
application:
  signer_key_file: "`+keyPath+`"
schedule:
  rebalance: 45s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, signerAddress(t), cfg.Application.From())
	require.Equal(t, 45*time.Second, cfg.Schedule.Rebalance.Duration)
}

func TestLoadConfigKeystore(t *testing.T) {
	key, err := crypto.PrivateKeyFromHex(testSignerHex)
	require.NoError(t, err)
	dir := t.TempDir()
	keystorePath := filepath.Join(dir, "application.keystore")
	require.NoError(t, crypto.SaveToKeystore(keystorePath, key, "worker-secret"))
	passPath := filepath.Join(dir, "passphrase")
	require.NoError(t, os.WriteFile(passPath, []byte("worker-secret\n"), 0o600))

	body := func(address string) string {
		return `
contracts:
  fund: "0x00000000000000000000000000000000000000f1"
  oracle: "0x00000000000000000000000000000000000000f2"
application:
  keystore: "` + keystorePath + `"
  passphrase_file: "` + passPath + `"
  address: "` + address + `"
`
	}
	cfg, err := LoadConfig(writeConfig(t, body(signerAddress(t).Hex())))
	require.NoError(t, err)
	require.Equal(t, signerAddress(t), cfg.Application.From())

	_, err = LoadConfig(writeConfig(t, body("0x00000000000000000000000000000000000000f3")))
	require.ErrorIs(t, err, crypto.ErrKeystoreAccount)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing signer": `
contracts:
  fund: "0x00000000000000000000000000000000000000f1"
  oracle: "0x00000000000000000000000000000000000000f2"
`,
		"bad fund address": `
contracts:
  fund: "fund"
  oracle: "0x00000000000000000000000000000000000000f2"
application:
  signer_key: "` + testSignerHex + `"
`,
		"address mismatch": `
contracts:
  fund: "0x00000000000000000000000000000000000000f1"
  oracle: "0x00000000000000000000000000000000000000f2"
application:
  signer_key: "` + testSignerHex + `"
  address: "0x00000000000000000000000000000000000000f3"
`,
		"unknown field": `
contracts:
  fund: "0x00000000000000000000000000000000000000f1"
  oracle: "0x00000000000000000000000000000000000000f2"
application:
  signer_key: "` + testSignerHex + `"
mnemonic: "nope"
`,
		"unknown price source": `
contracts:
  fund: "0x00000000000000000000000000000000000000f1"
  oracle: "0x00000000000000000000000000000000000000f2"
application:
  signer_key: "` + testSignerHex + `"
price_source:
  type: pyth
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
