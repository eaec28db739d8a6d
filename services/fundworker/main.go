package fundworker

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"portfolium/observability/logging"
	telemetry "portfolium/observability/otel"
)

// Main initialises and runs the fund worker.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to fundworker configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PORTFOLIUM_ENV"))
	logger := logging.Setup("fundworker", env)
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	telemetryCfg := telemetry.ConfigFromEnv("fundworker", telemetry.ComponentWorker, env, os.Getenv).
		WithAttribute("fund", cfg.Contracts.Fund).
		WithAttribute("application", cfg.Application.From().Hex())
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()
	logger.Info("fundworker configured",
		slog.String("rpc_url", cfg.Web3.URL),
		slog.String("price_source", cfg.PriceSource.Type),
		slog.String("endpoint", cfg.PriceSource.Endpoint))

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(stopCtx, 10*time.Second)
	client, err := DialEVMClient(dialCtx, cfg.Web3.URL)
	cancel()
	if err != nil {
		return fmt.Errorf("dial web3 %s: %w", logging.RedactURL(cfg.Web3.URL), err)
	}
	defer client.Close()

	chainID := big.NewInt(cfg.Web3.ChainID)
	if cfg.Web3.ChainID == 0 {
		idCtx, cancel := context.WithTimeout(stopCtx, 10*time.Second)
		chainID, err = client.ChainID(idCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("fetch chain id: %w", err)
		}
	}

	nonces, err := OpenNonceStore(cfg.NonceDB)
	if err != nil {
		return err
	}
	defer nonces.Close()
	dsn, err := QuoteFileDSN(cfg.QuoteDB)
	if err != nil {
		return err
	}
	quotes, err := OpenQuoteStore(dsn)
	if err != nil {
		return err
	}
	defer quotes.Close()

	sender, err := NewSender(client, cfg.Application.Key().PrivateKey, chainID, nonces,
		WithSenderLogger(logger.With(slog.String("component", "sender"))),
		WithGasMargin(cfg.Gas.MarginPercent))
	if err != nil {
		return err
	}
	defer sender.Close()

	chain := NewEVMChain(client, sender, EVMAddresses{
		Fund:   common.HexToAddress(cfg.Contracts.Fund),
		Oracle: common.HexToAddress(cfg.Contracts.Oracle),
	}, EVMGas{
		Rebalance: cfg.Gas.Rebalance,
		PricePush: cfg.Gas.PricePush,
		Orders:    cfg.Gas.Orders,
	})
	source, err := NewPriceSource(cfg.PriceSource)
	if err != nil {
		return err
	}
	worker := NewWorker(WorkerConfig{
		Chain:           chain,
		Source:          source,
		Quotes:          quotes,
		Application:     sender.From(),
		RebalanceEvery:  cfg.Schedule.Rebalance.Duration,
		PricePushEvery:  cfg.Schedule.PricePush.Duration,
		SettlementDelay: cfg.Schedule.SettlementDelay.Duration,
		DisableOrders:   cfg.Schedule.DisableOrders,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      NewAdminServer(worker),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("fundworker listening", slog.String("addr", httpServer.Addr), slog.String("application", sender.From().Hex()))
		errs <- httpServer.ListenAndServe()
	}()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(stopCtx)
	}()

	select {
	case <-stopCtx.Done():
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-done
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
	}
	<-done
	return nil
}
