package portfoliumd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"portfolium/crypto"
)

func writeDaemonFiles(t *testing.T, worker string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	genesisPath := filepath.Join(dir, "genesis.json")
	raw, err := json.Marshal(testSpec())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(genesisPath, raw, 0o644))

	dataDir := filepath.Join(dir, "data")
	cfg := fmt.Sprintf(`ListenAddress = "127.0.0.1:0"
DataDir = %q
GenesisFile = %q

[Auth]
Enabled = false
%s`, dataDir, genesisPath, worker)
	cfgPath := filepath.Join(dir, "portfoliumd.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, dataDir
}

func TestMainServesUntilCancelled(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "true")
	cfgPath, dataDir := writeDaemonFiles(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() { errs <- Main(ctx, cfgPath, nil) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dataDir, "events.db"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not stop")
	}
	_, err := os.Stat(filepath.Join(dataDir, "state"))
	require.NoError(t, err)
}

func TestMainRejectsForeignWorkerKey(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "true")
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	keystorePath := filepath.Join(t.TempDir(), "application.keystore")
	require.NoError(t, crypto.SaveToKeystore(keystorePath, key, "secret"))

	worker := fmt.Sprintf(`
[Worker]
Enabled = true
Portfolio = %q
ApplicationKeystorePath = %q
`, crypto.AccountAddress(testOwner).String(), keystorePath)
	cfgPath, _ := writeDaemonFiles(t, worker)

	asked := false
	err = Main(context.Background(), cfgPath, func(envVar string) (string, error) {
		asked = true
		return "secret", nil
	})
	require.ErrorIs(t, err, crypto.ErrKeystoreAccount)
	require.Contains(t, err.Error(), "not the application account")
	require.False(t, asked, "a foreign keystore must not prompt for its passphrase")
}
