// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/hostsync/cmd/hostsync/cli"
	"github.com/bureau-foundation/hostsync/lib/credential"
)

type proofParams struct {
	globalFlags
	cli.JSONOutput
	Role string
}

type proofResult struct {
	Role        string `json:"role"`
	AgentPubKey string `json:"agent_pub_key"`
	ReadOnly    bool   `json:"read_only"`
	Proof       string `json:"proof"`
}

func proofCommand() *cli.Command {
	var params proofParams

	return &cli.Command{
		Name:    "proof",
		Summary: "Fetch and print the membrane proof for a role",
		Description: `Resolve the membrane proof for one role under the host's agent key.

A cached proof is printed as is. Otherwise the proof is requested from
the registration service and cached. With membrane.read_only set the
read-only proof is printed and nothing is contacted.`,
		Usage: "hostsync proof --role <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("proof", pflag.ContinueOnError)
			params.globalFlags.add(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			flagSet.StringVar(&params.Role, "role", "", "role name (required)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if params.Role == "" {
				return cli.Validation("--role is required")
			}
			env, err := openEnvironment(ctx, &params.globalFlags, false)
			if err != nil {
				return err
			}
			defer env.Close()

			key, err := env.agentKeys.Get(ctx)
			if err != nil {
				return err
			}
			var identity credential.Identity
			if env.descriptor != nil {
				identity = env.descriptor.Identity
			}
			proof, err := env.proofs.GetProof(ctx, identity, params.Role, key.Key)
			if err != nil {
				return err
			}

			result := proofResult{
				Role:        params.Role,
				AgentPubKey: key.Key.String(),
				ReadOnly:    proof.IsReadOnly(),
				Proof:       proof.String(),
			}
			if done, err := params.EmitJSON(stdout, result); done {
				return err
			}
			if result.ReadOnly {
				fmt.Fprintf(stdout, "%s: read-only\n", result.Role)
				return nil
			}
			fmt.Fprintf(stdout, "%s: %d-byte proof for %s\n%s\n",
				result.Role, len(proof), result.AgentPubKey, result.Proof)
			return nil
		},
	}
}
