package portfoliumd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"portfolium/config"
	"portfolium/core"
	"portfolium/core/genesis"
	"portfolium/crypto"
	"portfolium/gateway/middleware"
	"portfolium/observability/logging"
	telemetry "portfolium/observability/otel"
	"portfolium/services/fundworker"
	"portfolium/storage"
)

// PassphraseFunc resolves the passphrase of the application keystore, first
// from envVar.
type PassphraseFunc func(envVar string) (string, error)

// Main loads the configuration at cfgPath and serves the platform until ctx
// is cancelled.
func Main(ctx context.Context, cfgPath string, passphrase PassphraseFunc) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup("portfoliumd", cfg.Environment)
	telemetryCfg := telemetry.ConfigFromEnv("portfoliumd", telemetry.ComponentDaemon, cfg.Environment, os.Getenv).
		WithAttribute("listen_address", cfg.ListenAddress)
	if cfg.Worker.Enabled {
		telemetryCfg = telemetryCfg.WithAttribute("portfolio", cfg.Worker.Portfolio)
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	spec, err := genesis.LoadGenesisSpec(cfg.GenesisFile)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	platform, err := core.NewPlatform(db, spec, core.WithLogger(logger.With(slog.String("component", "platform"))))
	if err != nil {
		return fmt.Errorf("start platform: %w", err)
	}

	index, err := OpenEventIndex(eventIndexDSN(cfg))
	if err != nil {
		return err
	}
	defer index.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, unsubscribe := platform.Subscribe(cfg.EventBuffer)
	defer unsubscribe()
	indexDone := make(chan struct{})
	go func() {
		defer close(indexDone)
		index.Follow(runCtx, events, platform.Height, logger.With(slog.String("component", "event_index")))
	}()

	var worker *fundworker.Worker
	if cfg.Worker.Enabled {
		var closeWorker func()
		worker, closeWorker, err = startWorker(cfg, platform, passphrase, logger)
		if err != nil {
			return err
		}
		defer closeWorker()
	}

	secret := strings.TrimSpace(os.Getenv(cfg.Auth.HMACSecretEnv))
	if cfg.Auth.Enabled && secret == "" {
		return fmt.Errorf("auth enabled but %s is not set", cfg.Auth.HMACSecretEnv)
	}
	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for name, limit := range cfg.RateLimits {
		limits[name] = middleware.RateLimit{RatePerSecond: limit.RatePerSecond, Burst: limit.Burst}
	}
	srv, err := New(Config{
		Platform: platform,
		Events:   index,
		Worker:   worker,
		Auth: middleware.AuthConfig{
			Enabled:        cfg.Auth.Enabled,
			HMACSecret:     secret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			AllowAnonymous: cfg.Auth.AllowAnonymousReads,
			ClockSkew:      time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		},
		RateLimits:   limits,
		CORS:         middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Commit:       true,
		LogRequests:  cfg.Environment != "prod",
		StreamBuffer: cfg.EventBuffer,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("portfoliumd listening",
			slog.String("addr", httpServer.Addr),
			slog.Uint64("height", platform.Height()),
			slog.String("root", platform.Root().Hex()))
		errs <- httpServer.ListenAndServe()
	}()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if worker != nil {
			_ = worker.Run(runCtx)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
	}
	cancel()
	<-workerDone
	<-indexDone
	if _, err := platform.Commit(); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("final commit: %w", err)
	}
	return serveErr
}

func eventIndexDSN(cfg *config.Config) string {
	if dsn := strings.TrimSpace(cfg.EventIndexDSN); dsn != "" {
		return dsn
	}
	path := cfg.EventIndexPath()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fmt.Sprintf("file:%s?mode=rwc&_busy_timeout=5000&_journal_mode=WAL", path)
}

// startWorker runs the fund worker in-process against the platform. The
// keystore key must belong to the genesis application account.
func startWorker(cfg *config.Config, platform *core.Platform, passphrase PassphraseFunc, logger *slog.Logger) (*fundworker.Worker, func(), error) {
	portfolio, err := crypto.ParseAccount(cfg.Worker.Portfolio)
	if err != nil {
		return nil, nil, fmt.Errorf("worker portfolio: %w", err)
	}
	if passphrase == nil {
		return nil, nil, fmt.Errorf("worker: no passphrase source")
	}
	var application [20]byte
	if err := platform.View(func(e *core.Engines) error {
		var err error
		application, err = e.Synthetic.Application()
		return err
	}); err != nil {
		return nil, nil, err
	}
	_, err = crypto.UnlockKeystore(cfg.Worker.ApplicationKeystorePath, application, func() (string, error) {
		return passphrase(cfg.Worker.PassphraseEnv)
	})
	if errors.Is(err, crypto.ErrKeystoreAccount) {
		return nil, nil, fmt.Errorf("worker keystore is not the application account: %w", err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load application key: %w", err)
	}

	dsn, err := fundworker.QuoteFileDSN(filepath.Join(cfg.DataDir, "quotes.db"))
	if err != nil {
		return nil, nil, err
	}
	quotes, err := fundworker.OpenQuoteStore(dsn)
	if err != nil {
		return nil, nil, err
	}
	workerCfg := fundworker.WorkerConfig{
		Chain:           fundworker.NewLocalChain(platform, portfolio, application, fundworker.WithCommit(true)),
		Quotes:          quotes,
		Application:     common.Address(application),
		RebalanceEvery:  time.Duration(cfg.Worker.RebalanceSeconds) * time.Second,
		PricePushEvery:  time.Duration(cfg.Worker.PricePushSeconds) * time.Second,
		SettlementDelay: time.Duration(cfg.Worker.SettlementDelaySeconds) * time.Second,
		DisableOrders:   cfg.Worker.DisableOrders,
		Logger:          logger.With(slog.String("component", "fundworker")),
	}
	if len(cfg.Worker.Prices) > 0 {
		source, err := fundworker.NewStaticSource(cfg.Worker.Prices)
		if err != nil {
			quotes.Close()
			return nil, nil, err
		}
		workerCfg.Source = source
	}
	return fundworker.NewWorker(workerCfg), func() { _ = quotes.Close() }, nil
}
