// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/secret"
)

func registerHandlers(server *Server, keyring *Keyring) {
	server.Handle(ActionSign, func(ctx context.Context, raw []byte) (any, error) {
		var request signRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding sign request: %w", err)
		}
		signature, err := keyring.Sign(ctx, request.Agent, request.Data)
		if err != nil {
			return nil, err
		}
		return signResponse{Signature: signature}, nil
	})

	server.Handle(ActionImportSeed, func(ctx context.Context, raw []byte) (any, error) {
		var request importSeedRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding import_seed request: %w", err)
		}
		seed, err := secret.NewFromBytes(request.Seed)
		if err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		defer seed.Close()
		agent, err := keyring.ImportSeed(seed.Bytes())
		if err != nil {
			return nil, err
		}
		return keyResponse{Agent: agent}, nil
	})

	server.Handle(ActionNewKey, func(context.Context, []byte) (any, error) {
		agent, err := keyring.NewKey()
		if err != nil {
			return nil, err
		}
		return keyResponse{Agent: agent}, nil
	})

	server.Handle(ActionListKeys, func(context.Context, []byte) (any, error) {
		return listKeysResponse{Agents: keyring.List()}, nil
	})
}
