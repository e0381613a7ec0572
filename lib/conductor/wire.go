// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductor

import (
	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/hashes"
)

// MessageType distinguishes frames.
type MessageType string

const (
	MessageRequest  MessageType = "request"
	MessageResponse MessageType = "response"
	MessageSignal   MessageType = "signal"
)

// Message is one websocket frame. Data is the CBOR-encoded Payload of
// a request or response, or an opaque signal.
type Message struct {
	Type MessageType `cbor:"type"`
	ID   uint64      `cbor:"id,omitempty"`
	Data []byte      `cbor:"data"`
}

// Payload is a typed request or response body.
type Payload struct {
	Type  string           `cbor:"type"`
	Value codec.RawMessage `cbor:"value,omitempty"`
}

// Request and response type names.
const (
	RequestAttachAppInterface = "attach_app_interface"
	RequestGenerateAgentKey   = "generate_agent_pub_key"
	RequestListApps           = "list_apps"
	RequestInstallApp         = "install_app"
	RequestEnableApp          = "enable_app"
	RequestDisableApp         = "disable_app"
	RequestUninstallApp       = "uninstall_app"
	RequestIssueAppAuthToken  = "issue_app_auth_token"
	RequestGraftRecords       = "graft_records"
	RequestListAppCells       = "list_app_cells"
	RequestAuthenticate       = "authenticate"
	RequestCallZome           = "call_zome"
	RequestAppInfo            = "app_info"

	ResponseAppInterfaceAttached = "app_interface_attached"
	ResponseAgentKeyGenerated    = "agent_pub_key_generated"
	ResponseAppsListed           = "apps_listed"
	ResponseAppInstalled         = "app_installed"
	ResponseAppEnabled           = "app_enabled"
	ResponseAppDisabled          = "app_disabled"
	ResponseAppUninstalled       = "app_uninstalled"
	ResponseAppAuthTokenIssued   = "app_auth_token_issued"
	ResponseRecordsGrafted       = "records_grafted"
	ResponseAppCellsListed       = "app_cells_listed"
	ResponseAuthenticated        = "authenticated"
	ResponseZomeCalled           = "zome_called"
	ResponseAppInfo              = "app_info"
	ResponseError                = "error"
)

// AppStatus is an installed app's lifecycle state.
type AppStatus string

const (
	StatusEnabled  AppStatus = "enabled"
	StatusDisabled AppStatus = "disabled"
	StatusPaused   AppStatus = "paused"
)

// StatusFilter narrows ListApps. The empty filter lists every app.
type StatusFilter string

const (
	FilterAll      StatusFilter = ""
	FilterEnabled  StatusFilter = "enabled"
	FilterDisabled StatusFilter = "disabled"
	FilterPaused   StatusFilter = "paused"
)

// Cell types within an app's cell info.
const (
	CellProvisioned = "provisioned"
	CellCloned      = "cloned"
	CellStem        = "stem"
)

// AppInfo is the conductor's view of one installed app.
type AppInfo struct {
	InstalledAppID string                `cbor:"installed_app_id"`
	AgentPubKey    hashes.AgentPubKey    `cbor:"agent_pub_key"`
	Status         AppStatus             `cbor:"status"`
	CellInfo       map[string][]CellInfo `cbor:"cell_info"`
}

// CellInfo describes one cell of a role.
type CellInfo struct {
	Type   string         `cbor:"type"`
	CellID *hashes.CellID `cbor:"cell_id,omitempty"`
	Name   string         `cbor:"name,omitempty"`
}

// ProvisionedCells maps each role to its provisioned cell.
func (a *AppInfo) ProvisionedCells() map[string]hashes.CellID {
	cells := make(map[string]hashes.CellID, len(a.CellInfo))
	for role, infos := range a.CellInfo {
		for _, info := range infos {
			if info.Type == CellProvisioned && info.CellID != nil {
				cells[role] = *info.CellID
				break
			}
		}
	}
	return cells
}

// Cells returns every cell with an id, provisioned or cloned.
func (a *AppInfo) Cells() []hashes.CellID {
	var cells []hashes.CellID
	for _, infos := range a.CellInfo {
		for _, info := range infos {
			if info.CellID != nil {
				cells = append(cells, *info.CellID)
			}
		}
	}
	return cells
}

// BundleSource is where the conductor reads an app bundle from:
// a path on the conductor's filesystem or the bundle bytes inline.
type BundleSource struct {
	Path   string `cbor:"path,omitempty"`
	Bundle []byte `cbor:"bundle,omitempty"`
}

// Role setting types.
const (
	RoleProvisioned = "provisioned"
	RoleUseExisting = "use_existing"
)

// RoleSettings configures one role at install time.
type RoleSettings struct {
	Type          string         `cbor:"type"`
	MembraneProof []byte         `cbor:"membrane_proof,omitempty"`
	Modifiers     *DnaModifiers  `cbor:"modifiers,omitempty"`
	CellID        *hashes.CellID `cbor:"cell_id,omitempty"`
}

// DnaModifiers overrides DNA properties.
type DnaModifiers struct {
	Properties map[string]any `cbor:"properties,omitempty"`
}

// Provisioned returns settings that create a new cell with proof and
// optional property overrides.
func Provisioned(proof []byte, properties map[string]any) RoleSettings {
	settings := RoleSettings{Type: RoleProvisioned, MembraneProof: proof}
	if len(properties) > 0 {
		settings.Modifiers = &DnaModifiers{Properties: properties}
	}
	return settings
}

// UseExisting returns settings that bind the role to an existing cell.
func UseExisting(cell hashes.CellID) RoleSettings {
	return RoleSettings{Type: RoleUseExisting, CellID: &cell}
}

// InstallAppRequest installs one app.
type InstallAppRequest struct {
	InstalledAppID string                  `cbor:"installed_app_id"`
	AgentKey       hashes.AgentPubKey      `cbor:"agent_key"`
	Source         BundleSource            `cbor:"source"`
	RoleSettings   map[string]RoleSettings `cbor:"roles_settings,omitempty"`
}

// SignedRecord is an action with its entry, as exported by a
// checkpoint service and grafted back into a source chain.
type SignedRecord struct {
	ActionHash hashes.ActionHash `cbor:"action_hash"`
	Action     codec.RawMessage  `cbor:"action"`
	Signature  []byte            `cbor:"signature"`
	Entry      codec.RawMessage  `cbor:"entry,omitempty"`
}

// AppAuthToken authenticates one app websocket connection.
type AppAuthToken struct {
	Token []byte `cbor:"token"`
	// ExpiresAt is microseconds since the Unix epoch; zero never expires.
	ExpiresAt int64 `cbor:"expires_at,omitempty"`
}

type appIDRequest struct {
	InstalledAppID string `cbor:"installed_app_id"`
}

type listAppsRequest struct {
	StatusFilter StatusFilter `cbor:"status_filter,omitempty"`
}

type attachRequest struct {
	Port int `cbor:"port"`
}

type attachResponse struct {
	Port int `cbor:"port"`
}

type enableResponse struct {
	App    AppInfo  `cbor:"app"`
	Errors []string `cbor:"errors,omitempty"`
}

type issueTokenRequest struct {
	InstalledAppID string `cbor:"installed_app_id"`
	ExpirySeconds  uint64 `cbor:"expiry_seconds"`
	SingleUse      bool   `cbor:"single_use"`
}

type graftRequest struct {
	CellID   hashes.CellID  `cbor:"cell_id"`
	Validate bool           `cbor:"validate"`
	Records  []SignedRecord `cbor:"records"`
}

type authenticateRequest struct {
	Token []byte `cbor:"token"`
}

type callZomeRequest struct {
	Bytes     []byte `cbor:"bytes"`
	Signature []byte `cbor:"signature"`
}
