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

type agentKeyParams struct {
	globalFlags
	cli.JSONOutput
	Regenerate bool
}

type agentKeyResult struct {
	AgentPubKey string                `json:"agent_pub_key"`
	Policy      credential.Policy     `json:"policy"`
	Provenance  credential.Provenance `json:"provenance"`
}

func agentKeyCommand() *cli.Command {
	var params agentKeyParams

	return &cli.Command{
		Name:    "agent-key",
		Summary: "Show or regenerate the host's agent key",
		Description: `Print the agent key apps are installed under.

Under the deterministic policy the key is derived from the seed bundle
in the identity descriptor and imported into the key custodian; it is
the same on every run. Under the ephemeral policy the conductor
generates the key once and it is kept in the store.

--regenerate replaces an ephemeral key and clears every cached
membrane proof. Under the deterministic policy it derives the key
again.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("agent-key", pflag.ContinueOnError)
			params.globalFlags.add(flagSet)
			params.JSONOutput.AddFlag(flagSet)
			flagSet.BoolVar(&params.Regenerate, "regenerate", false, "replace the stored key")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			env, err := openEnvironment(ctx, &params.globalFlags, false)
			if err != nil {
				return err
			}
			defer env.Close()

			var key *credential.AgentKey
			if params.Regenerate {
				key, err = env.agentKeys.Regenerate(ctx)
			} else {
				key, err = env.agentKeys.Get(ctx)
			}
			if err != nil {
				return err
			}

			result := agentKeyResult{
				AgentPubKey: key.Key.String(),
				Policy:      env.agentKeys.Policy(),
				Provenance:  key.Provenance,
			}
			if done, err := params.EmitJSON(stdout, result); done {
				return err
			}
			fmt.Fprintf(stdout, "%s\n  policy:     %s\n  provenance: %s\n",
				result.AgentPubKey, result.Policy, result.Provenance)
			return nil
		},
	}
}
