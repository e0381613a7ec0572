// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"cmp"
	"slices"

	"github.com/bureau-foundation/hostsync/lib/app"
	"github.com/bureau-foundation/hostsync/lib/conductor"
)

// PlannedApp is one app in a Plan.
type PlannedApp struct {
	AppID string `json:"app_id"`
	// Status is the live status; empty for apps to install.
	Status conductor.AppStatus `json:"status,omitempty"`
	Spec   *app.Spec           `json:"-"`
}

// Plan is what a run would do against a snapshot of live apps.
type Plan struct {
	// Install holds desired apps that are absent, in run order.
	Install []PlannedApp `json:"install"`
	// Ensure holds desired apps that are present.
	Ensure []PlannedApp `json:"ensure"`
	// Uninstall holds present apps that are not desired.
	Uninstall []PlannedApp `json:"uninstall"`
	// Protected holds present, undesired apps kept by prefix.
	Protected []PlannedApp `json:"protected"`
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Install) == 0 && len(p.Uninstall) == 0
}

// orderDesired returns desired with privileged apps first, keeping
// the relative order within each group.
func orderDesired(desired []app.Spec) []app.Spec {
	ordered := slices.Clone(desired)
	slices.SortStableFunc(ordered, func(a, b app.Spec) int {
		return -cmp.Compare(boolRank(a.Privileged), boolRank(b.Privileged))
	})
	return ordered
}

func boolRank(value bool) int {
	if value {
		return 1
	}
	return 0
}

// ComputePlan compares desired against live.
func ComputePlan(desired []app.Spec, live []conductor.AppInfo, namespace string, protected []string) *Plan {
	plan := &Plan{
		Install:   []PlannedApp{},
		Ensure:    []PlannedApp{},
		Uninstall: []PlannedApp{},
		Protected: []PlannedApp{},
	}
	byID := make(map[string]conductor.AppInfo, len(live))
	for _, info := range live {
		byID[info.InstalledAppID] = info
	}

	wanted := make(map[string]bool, len(desired))
	for _, spec := range orderDesired(desired) {
		id := spec.ID(namespace)
		wanted[id] = true
		planned := PlannedApp{AppID: id, Spec: &spec}
		if info, present := byID[id]; present {
			planned.Status = info.Status
			plan.Ensure = append(plan.Ensure, planned)
		} else {
			plan.Install = append(plan.Install, planned)
		}
	}

	for _, info := range live {
		if wanted[info.InstalledAppID] {
			continue
		}
		planned := PlannedApp{AppID: info.InstalledAppID, Status: info.Status}
		if app.HasAnyPrefix(info.InstalledAppID, protected) {
			plan.Protected = append(plan.Protected, planned)
		} else {
			plan.Uninstall = append(plan.Uninstall, planned)
		}
	}
	return plan
}
