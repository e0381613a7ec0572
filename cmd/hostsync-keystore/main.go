// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Hostsync-keystore is the key custodian: it holds agent private keys
// and signs on request over a unix socket, so that hostsync itself
// never sees key material.
//
// Seeds are sealed with the passphrase in keystore.passphrase_file and
// stored one file per agent in keystore.seed_directory. Without a
// passphrase file keys live only in memory and are lost on restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hostsync/lib/config"
	"github.com/bureau-foundation/hostsync/lib/keystore"
	"github.com/bureau-foundation/hostsync/lib/secret"
	"github.com/bureau-foundation/hostsync/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath     string
		socketPath     string
		passphraseFile string
		showVersion    bool
	)
	flagSet := pflag.NewFlagSet("hostsync-keystore", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to hostsync.yaml (default $"+config.EnvVar+")")
	flagSet.StringVar(&socketPath, "socket", "", "override keystore.socket_path")
	flagSet.StringVar(&passphraseFile, "passphrase-file", "", `override keystore.passphrase_file ("-" for stdin)`)
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("hostsync-keystore %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Keystore.SocketPath = socketPath
	}
	if passphraseFile != "" {
		cfg.Keystore.PassphraseFile = passphraseFile
	}
	if cfg.Keystore.SocketPath == "" {
		return errors.New("keystore.socket_path is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keyring, closeVault, err := openKeyring(cfg.Keystore, logger)
	if err != nil {
		return err
	}
	defer closeVault()

	if err := os.MkdirAll(filepath.Dir(cfg.Keystore.SocketPath), 0o700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	server := keystore.NewServer(cfg.Keystore.SocketPath, keyring, logger)
	return server.Serve(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// openKeyring loads every sealed seed when a passphrase is configured.
// The returned func releases the passphrase.
func openKeyring(keystoreConfig config.KeystoreConfig, logger *slog.Logger) (*keystore.Keyring, func(), error) {
	if keystoreConfig.PassphraseFile == "" {
		logger.Warn("no keystore.passphrase_file configured; keys are held in memory only")
		keyring, err := keystore.NewKeyring(nil)
		return keyring, func() {}, err
	}

	passphrase, err := secret.ReadFromPath(keystoreConfig.PassphraseFile)
	if err != nil {
		return nil, nil, fmt.Errorf("reading keystore passphrase: %w", err)
	}
	vault := keystore.NewVault(keystoreConfig.SeedDirectory, passphrase, 0)
	keyring, err := keystore.NewKeyring(vault)
	if err != nil {
		passphrase.Close()
		return nil, nil, fmt.Errorf("opening seed vault: %w", err)
	}
	logger.Info("seed vault opened",
		"directory", keystoreConfig.SeedDirectory,
		"keys", len(keyring.List()),
	)
	return keyring, func() { passphrase.Close() }, nil
}
