package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"portfolium/cmd/internal/passphrase"
	"portfolium/services/portfoliumd"
)

func main() {
	cfgPath := flag.String("config", "./portfoliumd.toml", "path to portfoliumd configuration")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keystorePassphrase := func(envVar string) (string, error) {
		return passphrase.NewSource(envVar, passphrase.WithLabel("application keystore")).Get()
	}
	if err := portfoliumd.Main(ctx, *cfgPath, keystorePassphrase); err != nil {
		log.Fatalf("portfoliumd: %v", err)
	}
}
