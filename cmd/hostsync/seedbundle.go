// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/hostsync/cmd/hostsync/cli"
	"github.com/bureau-foundation/hostsync/lib/credential"
	"github.com/bureau-foundation/hostsync/lib/secret"
)

func seedBundleCommand() *cli.Command {
	return &cli.Command{
		Name:    "seed-bundle",
		Summary: "Manage identity seed bundles",
		Description: `Operator tooling for the identity descriptor a host is provisioned
with. The descriptor carries the registration identity and a
password-encrypted master seed from which the deterministic agent key
is derived.`,
		Subcommands: []*cli.Command{
			seedBundleCreateCommand(),
		},
	}
}

type seedBundleCreateParams struct {
	Output           string
	Email            string
	RegistrationCode string
	PasswordFile     string
	Force            bool
}

func seedBundleCreateCommand() *cli.Command {
	var params seedBundleCreateParams

	return &cli.Command{
		Name:    "create",
		Summary: "Generate a master seed and write an identity descriptor",
		Description: `Generate a random master seed, encrypt it under a password with
argon2id and XChaCha20-Poly1305, and write an identity descriptor
holding the sealed seed and the registration identity.

The password is read from --password-file ("-" for one line of stdin)
or prompted for twice when stdin is a terminal. The seed itself is
never written anywhere unencrypted.`,
		Usage: "hostsync seed-bundle create --output <path> --email <address> --registration-code <code> [flags]",
		Examples: []cli.Example{
			{
				Description: "Create a descriptor, prompting for the password",
				Command:     "hostsync seed-bundle create --output identity.json --email ops@example.org --registration-code 7F3K-22QX",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			flagSet.StringVarP(&params.Output, "output", "o", "", "descriptor path to write (required)")
			flagSet.StringVar(&params.Email, "email", "", "registration email (required)")
			flagSet.StringVar(&params.RegistrationCode, "registration-code", "", "registration code (required)")
			flagSet.StringVar(&params.PasswordFile, "password-file", "", `file holding the bundle password, "-" for stdin`)
			flagSet.BoolVar(&params.Force, "force", false, "overwrite an existing descriptor")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if params.Output == "" || params.Email == "" || params.RegistrationCode == "" {
				return cli.Validation("--output, --email and --registration-code are required")
			}
			if !params.Force {
				if _, err := os.Stat(params.Output); err == nil {
					return cli.Validation("%s exists; pass --force to overwrite", params.Output)
				}
			}

			password, err := readBundlePassword(params.PasswordFile)
			if err != nil {
				return err
			}
			defer password.Close()

			descriptor, err := createDescriptor(credential.Identity{
				Email:            params.Email,
				RegistrationCode: params.RegistrationCode,
			}, password, credential.DefaultKDFParams)
			if err != nil {
				return err
			}
			data, err := descriptor.Marshal()
			if err != nil {
				return fmt.Errorf("encoding descriptor: %w", err)
			}
			if err := writeFileAtomic(params.Output, append(data, '\n')); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "wrote identity descriptor for %s to %s\n", params.Email, params.Output)
			return nil
		},
	}
}

// createDescriptor seals a fresh master seed under password.
func createDescriptor(identity credential.Identity, password *secret.Buffer, params credential.KDFParams) (*credential.Descriptor, error) {
	master, err := secret.New(credential.MasterSeedSize)
	if err != nil {
		return nil, err
	}
	defer master.Close()
	if _, err := rand.Read(master.Bytes()); err != nil {
		return nil, fmt.Errorf("generating master seed: %w", err)
	}

	bundle, err := credential.SealSeedBundle(master, password, params)
	if err != nil {
		return nil, fmt.Errorf("sealing seed bundle: %w", err)
	}
	return &credential.Descriptor{
		Version:    credential.DescriptorVersion,
		Identity:   identity,
		SeedBundle: base64.StdEncoding.EncodeToString(bundle),
	}, nil
}

// readBundlePassword reads the password from path, from one line of
// piped stdin, or from two terminal prompts that must agree.
func readBundlePassword(path string) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFromPath(path)
	}

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return secret.ReadFromPath("-")
	}

	fmt.Fprint(os.Stderr, "Bundle password: ")
	first, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		secret.Zero(first)
		return nil, fmt.Errorf("reading password confirmation: %w", err)
	}
	defer secret.Zero(second)

	if len(first) == 0 {
		return nil, errors.New("password is empty")
	}
	if string(first) != string(second) {
		secret.Zero(first)
		return nil, errors.New("passwords do not match")
	}
	return secret.NewFromBytes(first)
}

// writeFileAtomic writes data to path with mode 0600 through a
// temporary file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	directory := filepath.Dir(path)
	file, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	temporaryPath := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}
	return nil
}
