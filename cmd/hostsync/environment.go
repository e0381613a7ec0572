// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hostsync/cmd/hostsync/cli"
	"github.com/bureau-foundation/hostsync/lib/app"
	"github.com/bureau-foundation/hostsync/lib/checkpoint"
	"github.com/bureau-foundation/hostsync/lib/conductor"
	"github.com/bureau-foundation/hostsync/lib/config"
	"github.com/bureau-foundation/hostsync/lib/credential"
	"github.com/bureau-foundation/hostsync/lib/desired"
	"github.com/bureau-foundation/hostsync/lib/keystore"
	"github.com/bureau-foundation/hostsync/lib/reconcile"
	"github.com/bureau-foundation/hostsync/lib/secret"
	"github.com/bureau-foundation/hostsync/lib/signing"
)

// bundleDownloadTimeout bounds one bundle download.
const bundleDownloadTimeout = 10 * time.Minute

// globalFlags are accepted by every command that touches host state.
type globalFlags struct {
	ConfigPath string
	Verbose    bool
}

func (g *globalFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&g.ConfigPath, "config", "c", "", "path to hostsync.yaml (default $"+config.EnvVar+")")
	flagSet.BoolVarP(&g.Verbose, "verbose", "v", false, "log at debug level")
}

// loadConfig loads, validates and prepares the configuration. Load
// and validation failures are usage errors.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if g.ConfigPath != "" {
		cfg, err = config.LoadFile(g.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &cli.CommandError{Category: cli.CategoryValidation, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &cli.CommandError{Category: cli.CategoryValidation, Err: fmt.Errorf("invalid config: %w", err)}
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// environment holds the collaborators a command works with. Close
// releases them in reverse order.
type environment struct {
	config *config.Config
	logger *slog.Logger

	store  credential.Store
	signer *signing.Signer

	// admin is nil unless the command asked for the conductor or the
	// ephemeral policy needs it.
	admin *conductor.AdminClient

	// descriptor is nil when identity.descriptor_path is unset.
	descriptor *credential.Descriptor

	agentKeys *credential.AgentKeys
	proofs    *credential.ProofManager

	// checkpoints is nil when checkpoint.url is unset.
	checkpoints *checkpoint.Client

	closers []func() error
}

// openEnvironment builds the environment described by the config.
// withConductor connects to the admin interface up front.
func openEnvironment(ctx context.Context, globals *globalFlags, withConductor bool) (_ *environment, err error) {
	cfg, err := globals.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cli.NewCommandLogger(globals.Verbose)

	env := &environment{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	env.store, err = credential.OpenStore(cfg.Store.Backend, cfg.Store.Path, logger)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, env.store.Close)

	custodian := keystore.NewClient(cfg.Keystore.SocketPath)
	env.signer = signing.New(signing.Config{Custodian: custodian, Logger: logger})

	policy, err := credential.ParsePolicy(cfg.Agent.Policy)
	if err != nil {
		return nil, &cli.CommandError{Category: cli.CategoryValidation, Err: err}
	}

	if cfg.Identity.DescriptorPath != "" {
		env.descriptor, err = credential.LoadDescriptor(cfg.Identity.DescriptorPath)
		if err != nil {
			return nil, err
		}
	}

	if withConductor || policy == credential.PolicyEphemeral {
		env.admin, err = conductor.ConnectAdmin(ctx, cfg.Conductor.AdminURL, conductor.Options{
			RequestTimeout: cfg.Conductor.RequestTimeout,
			Retry:          retryPolicy(cfg.Conductor.ConnectRetry),
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, env.admin.Close)
	}

	keysConfig := credential.AgentKeysConfig{
		Policy:     policy,
		Store:      env.store,
		Importer:   custodian,
		Descriptor: env.descriptor,
		Logger:     logger,
	}
	if policy == credential.PolicyDeterministic {
		password, err := secret.ReadFromPath(cfg.Identity.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("reading identity password: %w", err)
		}
		env.closers = append(env.closers, password.Close)
		keysConfig.Password = password
	}
	if env.admin != nil {
		keysConfig.Generator = env.admin
	}
	env.agentKeys, err = credential.NewAgentKeys(keysConfig)
	if err != nil {
		return nil, err
	}

	proofsConfig := credential.ProofsConfig{
		ReadOnly: cfg.Membrane.ReadOnly,
		Store:    env.store,
		Logger:   logger,
	}
	if !cfg.Membrane.ReadOnly {
		if env.descriptor == nil {
			return nil, cli.Validation("identity.descriptor_path is required to register for membrane proofs")
		}
		proofsConfig.Identity = env.descriptor.Identity
		proofsConfig.Registrar = credential.NewRegistrationClient(
			cfg.Membrane.RegistrationURL, env.signer, cfg.Membrane.RequestTimeout, logger)
	}
	env.proofs, err = credential.NewProofManager(proofsConfig)
	if err != nil {
		return nil, err
	}

	if cfg.Checkpoint.URL != "" {
		env.checkpoints = checkpoint.NewClient(cfg.Checkpoint.URL, env.signer, cfg.Checkpoint.RequestTimeout, logger)
	}
	return env, nil
}

// Close releases everything the environment opened.
func (e *environment) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}

// resynchronizer returns nil when no checkpoint service is configured.
func (e *environment) resynchronizer() *checkpoint.Resynchronizer {
	if e.checkpoints == nil || e.admin == nil {
		return nil
	}
	return checkpoint.NewResynchronizer(e.checkpoints, e.admin, e.logger)
}

func (e *environment) reconciler() (*reconcile.Reconciler, error) {
	if e.admin == nil {
		return nil, errors.New("reconciler needs a conductor connection")
	}
	cfg := e.config
	reconcileConfig := reconcile.Config{
		Conductor: e.admin,
		Keys:      e.agentKeys,
		Proofs:    e.proofs,
		Bundles:   reconcile.NewFetcher(cfg.Apps.DownloadDirectory, bundleDownloadTimeout, e.logger),
		Namespace: cfg.Apps.NamespaceOverride,
		Protected: cfg.Apps.ProtectedPrefixes,
		Adoptable: cfg.Apps.Adoptable,
		Logger:    e.logger,
	}
	if restorer := e.resynchronizer(); restorer != nil {
		reconcileConfig.Restorer = restorer
	}
	return reconcile.New(reconcileConfig)
}

func (e *environment) desiredApps() ([]app.Spec, error) {
	return desired.Load(e.config.Apps.DesiredFile)
}

func retryPolicy(retry config.RetryConfig) conductor.RetryPolicy {
	return conductor.RetryPolicy{
		Interval:    retry.Interval,
		MaxInterval: retry.MaxInterval,
		MaxAttempts: retry.MaxAttempts,
	}
}
