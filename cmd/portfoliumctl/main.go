package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"portfolium/cmd/internal/passphrase"
	"portfolium/config"
	"portfolium/crypto"
	"portfolium/gateway/middleware"
	"portfolium/services/portfoliumd"
)

const (
	keygenCommand = "keygen"
	tokenCommand  = "token"
	exportCommand = "export-events"
	defaultConfig = "./portfoliumd.toml"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:])
	case tokenCommand:
		err = runToken(os.Args[2:])
	case exportCommand:
		err = runExport(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ExitOnError)
	keystorePath := fs.String("keystore", "application.keystore", "Output path for the generated keystore file")
	passEnv := fs.String("pass-env", config.DefaultPassphraseEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	fs.Parse(args)

	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore %s already exists (use --force to overwrite)", *keystorePath)
		}
	}
	source := passphrase.NewSource(*passEnv, passphrase.WithLabel("application keystore"), passphrase.WithConfirmation())
	pass, err := source.Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Printf("Keystore written to %s\nAccount: %s\n", *keystorePath, key.PubKey().Address().String())
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the portfoliumd config file")
	subject := fs.String("subject", "", "Account the token authenticates")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	scopes := fs.String("scopes", "", "Comma separated scopes")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	account, err := crypto.ParseAccount(*subject)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	secret := strings.TrimSpace(os.Getenv(cfg.Auth.HMACSecretEnv))
	if secret == "" {
		return fmt.Errorf("%s is not set", cfg.Auth.HMACSecretEnv)
	}
	var scopeList []string
	for _, scope := range strings.Split(*scopes, ",") {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			scopeList = append(scopeList, trimmed)
		}
	}
	token, err := middleware.IssueToken(middleware.TokenRequest{
		Secret:   secret,
		Subject:  account,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Scopes:   scopeList,
		TTL:      *ttl,
		Now:      time.Now(),
	})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet(exportCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the portfoliumd config file")
	out := fs.String("out", "events.parquet", "Output Parquet file")
	eventType := fs.String("type", "", "Only export events of this type")
	module := fs.String("module", "", "Only export events of this module")
	portfolio := fs.String("portfolio", "", "Only export events of this portfolio")
	after := fs.Uint64("after", 0, "Only export events with an id above this cursor")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dsn := cfg.EventIndexDSN
	if strings.TrimSpace(dsn) == "" {
		dsn = cfg.EventIndexPath()
	}
	index, err := portfoliumd.OpenEventIndex(dsn)
	if err != nil {
		return err
	}
	defer index.Close()

	written, err := index.ExportParquet(context.Background(), *out, portfoliumd.EventFilter{
		Type:      *eventType,
		Module:    *module,
		Portfolio: *portfolio,
		AfterID:   *after,
	})
	if err != nil {
		return err
	}
	digest, err := portfoliumd.WriteChecksum(*out)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d events to %s (blake3 %s)\n", written, *out, digest)
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: portfoliumctl <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %s        Generate an application keystore\n", keygenCommand)
	fmt.Fprintf(os.Stderr, "  %s         Issue an API bearer token\n", tokenCommand)
	fmt.Fprintf(os.Stderr, "  %s Export the event index to Parquet\n", exportCommand)
}
