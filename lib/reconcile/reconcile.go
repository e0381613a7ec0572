// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bureau-foundation/hostsync/lib/app"
	"github.com/bureau-foundation/hostsync/lib/checkpoint"
	"github.com/bureau-foundation/hostsync/lib/conductor"
	"github.com/bureau-foundation/hostsync/lib/credential"
	"github.com/bureau-foundation/hostsync/lib/hashes"
)

// Conductor is the admin surface a run needs. *conductor.AdminClient
// implements it.
type Conductor interface {
	ListApps(ctx context.Context, filter conductor.StatusFilter) ([]conductor.AppInfo, error)
	InstallApp(ctx context.Context, request conductor.InstallAppRequest) (*conductor.AppInfo, error)
	EnableApp(ctx context.Context, appID string) (*conductor.AppInfo, error)
	UninstallApp(ctx context.Context, appID string) error
}

// KeySource supplies the agent key apps are installed under.
// *credential.AgentKeys implements it.
type KeySource interface {
	Get(ctx context.Context) (*credential.AgentKey, error)
}

// ProofSource supplies membrane proofs per role.
// *credential.ProofManager implements it.
type ProofSource interface {
	ProofsForApp(ctx context.Context, spec app.Spec, agent hashes.AgentPubKey) (map[string]credential.MembraneProof, error)
}

// Restorer repairs diverged cells. *checkpoint.Resynchronizer
// implements it.
type Restorer interface {
	Restore(ctx context.Context, cells []hashes.CellID, divergence *checkpoint.Divergence) (int, error)
}

// Config configures a Reconciler.
type Config struct {
	Conductor Conductor
	Keys      KeySource
	Proofs    ProofSource
	Bundles   BundleResolver

	// Restorer repairs chain-head-moved divergences. Without one a
	// divergence aborts the run.
	Restorer Restorer

	// UI installs companion UI archives. Defaults to NopUI.
	UI UIInstaller

	// Namespace is appended to every app id as "::<namespace>".
	Namespace string

	// Protected id prefixes are never uninstalled.
	Protected []string

	// Adoptable id substrings may adopt existing cells on a
	// cell-already-exists conflict.
	Adoptable []string

	Logger *slog.Logger
}

// Report summarizes a successful run. It is not returned with an error.
type Report struct {
	RunID string `json:"run_id"`
	// Installed apps were absent and are now installed and enabled.
	Installed []string `json:"installed"`
	// AlreadyInstalled apps reported an install conflict and were
	// enabled in place.
	AlreadyInstalled []string `json:"already_installed"`
	// Adopted apps were installed onto the cells of another app.
	Adopted []string `json:"adopted"`
	// Present apps were desired and already installed.
	Present []string `json:"present"`
	// Resynced counts grafted checkpoint records per app.
	Resynced map[string]int `json:"resynced,omitempty"`
	// Uninstalled apps were live but no longer desired.
	Uninstalled []string `json:"uninstalled"`
	// Protected apps were undesired but kept by prefix.
	Protected []string `json:"protected"`
}

// Reconciler runs reconciliation passes. It is not safe for
// concurrent use; runs are sequential.
type Reconciler struct {
	config Config
	logger *slog.Logger
}

// New validates config and returns a Reconciler.
func New(config Config) (*Reconciler, error) {
	var errs []error
	if config.Conductor == nil {
		errs = append(errs, errors.New("Conductor is required"))
	}
	if config.Keys == nil {
		errs = append(errs, errors.New("Keys is required"))
	}
	if config.Proofs == nil {
		errs = append(errs, errors.New("Proofs is required"))
	}
	if config.Bundles == nil {
		errs = append(errs, errors.New("Bundles is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("reconciler: %w", err)
	}
	if config.UI == nil {
		config.UI = NopUI{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{config: config, logger: logger}, nil
}

// Plan lists the live apps and computes a plan without changing
// anything.
func (r *Reconciler) Plan(ctx context.Context, desired []app.Spec) (*Plan, error) {
	live, err := r.config.Conductor.ListApps(ctx, conductor.FilterAll)
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}
	return ComputePlan(desired, live, r.config.Namespace, r.config.Protected), nil
}

// run carries per-run state.
type run struct {
	*Reconciler
	logger *slog.Logger
	report *Report
	agent  *credential.AgentKey
}

// Run performs one reconciliation pass.
func (r *Reconciler) Run(ctx context.Context, desired []app.Spec) (*Report, error) {
	runID := uuid.NewString()
	pass := &run{
		Reconciler: r,
		logger:     r.logger.With("run_id", runID),
		report:     &Report{RunID: runID, Resynced: make(map[string]int)},
	}
	pass.logger.Info("reconciliation started", "desired", len(desired))

	live, err := r.config.Conductor.ListApps(ctx, conductor.FilterAll)
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}
	present := make(map[string]bool, len(live))
	for _, info := range live {
		present[info.InstalledAppID] = true
	}

	for _, spec := range orderDesired(desired) {
		appID := spec.ID(r.config.Namespace)
		if present[appID] {
			pass.logger.Debug("app present", "app_id", appID)
			pass.report.Present = append(pass.report.Present, appID)
		} else if err := pass.install(ctx, appID, spec); err != nil {
			return nil, err
		}
		if err := r.config.UI.InstallUI(ctx, appID, spec); err != nil {
			return nil, fmt.Errorf("installing UI for %s: %w", appID, err)
		}
	}

	if err := pass.cleanup(ctx, desired); err != nil {
		return nil, err
	}
	pass.logger.Info("reconciliation finished",
		"installed", len(pass.report.Installed)+len(pass.report.AlreadyInstalled)+len(pass.report.Adopted),
		"present", len(pass.report.Present),
		"uninstalled", len(pass.report.Uninstalled),
		"protected", len(pass.report.Protected),
	)
	return pass.report, nil
}

func (p *run) agentKey(ctx context.Context) (*credential.AgentKey, error) {
	if p.agent != nil {
		return p.agent, nil
	}
	agent, err := p.config.Keys.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving agent key: %w", err)
	}
	p.agent = agent
	return agent, nil
}

func (p *run) install(ctx context.Context, appID string, spec app.Spec) error {
	logger := p.logger.With("app_id", appID)
	agent, err := p.agentKey(ctx)
	if err != nil {
		return err
	}
	source, err := p.config.Bundles.Resolve(ctx, spec)
	if err != nil {
		return fmt.Errorf("resolving bundle for %s: %w", appID, err)
	}
	proofs, err := p.config.Proofs.ProofsForApp(ctx, spec, agent.Key)
	if err != nil {
		return fmt.Errorf("membrane proofs for %s: %w", appID, err)
	}

	settings := make(map[string]conductor.RoleSettings, len(proofs))
	for _, role := range spec.InstallRoles() {
		settings[role] = conductor.Provisioned(proofs[role], spec.Properties(role))
	}
	request := conductor.InstallAppRequest{
		InstalledAppID: appID,
		AgentKey:       agent.Key,
		Source:         source,
		RoleSettings:   settings,
	}

	_, err = p.config.Conductor.InstallApp(ctx, request)
	switch {
	case err == nil:
		logger.Info("installed app")
		p.report.Installed = append(p.report.Installed, appID)
	case conductor.IsAppAlreadyInstalled(err):
		logger.Info("app already installed, enabling")
		p.report.AlreadyInstalled = append(p.report.AlreadyInstalled, appID)
	case conductor.IsCellAlreadyExists(err):
		substring, adoptable := app.ContainsAny(appID, p.config.Adoptable)
		if !adoptable {
			return fmt.Errorf("installing %s: %w", appID, err)
		}
		if err := p.adopt(ctx, request, spec, substring, agent.Key); err != nil {
			return err
		}
		p.report.Adopted = append(p.report.Adopted, appID)
	case conductor.IsChainHeadMoved(err):
		if err := p.resync(ctx, appID, "installing", err); err != nil {
			return err
		}
		p.report.Installed = append(p.report.Installed, appID)
	default:
		return fmt.Errorf("installing %s: %w", appID, err)
	}
	return p.enable(ctx, appID)
}

// adopt reinstalls request wired to the provisioned cells of the live
// app whose id shares substring and whose agent key matches.
func (p *run) adopt(ctx context.Context, request conductor.InstallAppRequest, spec app.Spec, substring string, agent hashes.AgentPubKey) error {
	appID := request.InstalledAppID
	live, err := p.config.Conductor.ListApps(ctx, conductor.FilterAll)
	if err != nil {
		return fmt.Errorf("adopting cells for %s: listing apps: %w", appID, err)
	}

	var donor *conductor.AppInfo
	for index := range live {
		candidate := &live[index]
		if candidate.InstalledAppID == appID || !candidate.AgentPubKey.Equal(agent) {
			continue
		}
		if _, ok := app.ContainsAny(candidate.InstalledAppID, []string{substring}); ok {
			donor = candidate
			break
		}
	}
	if donor == nil {
		return fmt.Errorf("adopting cells for %s: no installed %q app for agent %s", appID, substring, agent)
	}

	cells := donor.ProvisionedCells()
	settings := make(map[string]conductor.RoleSettings, len(cells))
	for _, role := range spec.InstallRoles() {
		cell, ok := cells[role]
		if !ok {
			return fmt.Errorf("adopting cells for %s: %s has no cell for role %q", appID, donor.InstalledAppID, role)
		}
		settings[role] = conductor.UseExisting(cell)
	}
	request.RoleSettings = settings

	p.logger.Warn("cells already exist, adopting them",
		"app_id", appID,
		"donor_app_id", donor.InstalledAppID,
		"roles", len(settings),
	)
	if _, err := p.config.Conductor.InstallApp(ctx, request); err != nil {
		return fmt.Errorf("adopting cells of %s for %s: %w", donor.InstalledAppID, appID, err)
	}
	return nil
}

// enable enables appID, restoring diverged cells from the checkpoint
// service and retrying once on a chain-head-moved error.
func (p *run) enable(ctx context.Context, appID string) error {
	_, err := p.config.Conductor.EnableApp(ctx, appID)
	if err == nil {
		return nil
	}
	if err := p.resync(ctx, appID, "enabling", err); err != nil {
		return err
	}
	if _, err := p.config.Conductor.EnableApp(ctx, appID); err != nil {
		return fmt.Errorf("enabling %s after resync: %w", appID, err)
	}
	return nil
}

// resync restores the cells of appID from the checkpoint service when
// cause reports a diverged chain. Any other cause, or a missing
// Restorer, is returned wrapped with operation.
func (p *run) resync(ctx context.Context, appID, operation string, cause error) error {
	divergence, diverged := checkpoint.ParseDivergence(cause)
	if !diverged || p.config.Restorer == nil {
		return fmt.Errorf("%s %s: %w", operation, appID, cause)
	}

	cells, err := p.cellsOf(ctx, appID)
	if err != nil {
		return fmt.Errorf("%s %s: %w", operation, appID, errors.Join(cause, err))
	}
	count, err := p.config.Restorer.Restore(ctx, cells, divergence)
	if err != nil {
		return fmt.Errorf("%s %s: restoring diverged chain: %w", operation, appID, err)
	}
	p.report.Resynced[appID] += count
	p.logger.Info("restored diverged chain",
		"app_id", appID,
		"operation", operation,
		"records", count,
	)
	return nil
}

func (p *run) cellsOf(ctx context.Context, appID string) ([]hashes.CellID, error) {
	live, err := p.config.Conductor.ListApps(ctx, conductor.FilterAll)
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}
	for _, info := range live {
		if info.InstalledAppID == appID {
			return info.Cells(), nil
		}
	}
	return nil, fmt.Errorf("app %s is not installed", appID)
}

// cleanup uninstalls live apps that are not desired, keeping
// protected ones. The live list is fetched again so apps installed
// during the run are seen.
func (p *run) cleanup(ctx context.Context, desired []app.Spec) error {
	live, err := p.config.Conductor.ListApps(ctx, conductor.FilterAll)
	if err != nil {
		return fmt.Errorf("listing apps for cleanup: %w", err)
	}
	plan := ComputePlan(desired, live, p.config.Namespace, p.config.Protected)
	for _, planned := range plan.Protected {
		p.logger.Debug("keeping protected app", "app_id", planned.AppID)
		p.report.Protected = append(p.report.Protected, planned.AppID)
	}
	for _, planned := range plan.Uninstall {
		if err := p.config.Conductor.UninstallApp(ctx, planned.AppID); err != nil {
			return fmt.Errorf("uninstalling %s: %w", planned.AppID, err)
		}
		p.logger.Info("uninstalled app", "app_id", planned.AppID)
		p.report.Uninstalled = append(p.report.Uninstalled, planned.AppID)
	}
	return nil
}
