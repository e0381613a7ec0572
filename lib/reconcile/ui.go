// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"

	"github.com/bureau-foundation/hostsync/lib/app"
)

// UIInstaller installs an app's companion UI archive. It is called
// for every desired app on every run and must be idempotent.
type UIInstaller interface {
	InstallUI(ctx context.Context, appID string, spec app.Spec) error
}

// NopUI installs nothing.
type NopUI struct{}

func (NopUI) InstallUI(context.Context, string, app.Spec) error { return nil }
