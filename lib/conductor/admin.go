// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/bureau-foundation/hostsync/lib/hashes"
)

// AdminClient is a connection to the conductor's admin interface.
type AdminClient struct {
	conn *conn
}

// ConnectAdmin dials the admin interface at adminURL, retrying per
// options.Retry.
func ConnectAdmin(ctx context.Context, adminURL string, options Options) (*AdminClient, error) {
	options = options.withDefaults()
	c, err := dial(ctx, adminURL, options)
	if err != nil {
		return nil, err
	}
	options.Logger.Debug("connected to conductor admin interface", "url", adminURL)
	return &AdminClient{conn: c}, nil
}

// Close closes the connection. Pending calls fail with ErrClosed.
func (a *AdminClient) Close() error {
	return a.conn.close()
}

// AppURL returns the websocket URL of an app interface on port, on
// the same host as the admin interface.
func (a *AdminClient) AppURL(port int) (string, error) {
	parsed, err := url.Parse(a.conn.url)
	if err != nil {
		return "", fmt.Errorf("parsing admin url: %w", err)
	}
	parsed.Host = net.JoinHostPort(parsed.Hostname(), strconv.Itoa(port))
	parsed.Path = ""
	return parsed.String(), nil
}

// AttachAppInterface opens an app interface on port (zero lets the
// conductor choose) and returns the port in use.
func (a *AdminClient) AttachAppInterface(ctx context.Context, port int) (int, error) {
	var response attachResponse
	err := a.conn.call(ctx, RequestAttachAppInterface, attachRequest{Port: port}, ResponseAppInterfaceAttached, &response)
	if err != nil {
		return 0, err
	}
	return response.Port, nil
}

// GenerateAgentKey asks the conductor's keystore for a new random key.
func (a *AdminClient) GenerateAgentKey(ctx context.Context) (hashes.AgentPubKey, error) {
	var agent hashes.AgentPubKey
	if err := a.conn.call(ctx, RequestGenerateAgentKey, nil, ResponseAgentKeyGenerated, &agent); err != nil {
		return nil, err
	}
	if err := agent.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", RequestGenerateAgentKey, err)
	}
	return agent, nil
}

// ListApps lists installed apps matching filter.
func (a *AdminClient) ListApps(ctx context.Context, filter StatusFilter) ([]AppInfo, error) {
	var apps []AppInfo
	err := a.conn.call(ctx, RequestListApps, listAppsRequest{StatusFilter: filter}, ResponseAppsListed, &apps)
	if err != nil {
		return nil, err
	}
	return apps, nil
}

// InstallApp installs an app. The new app starts disabled.
func (a *AdminClient) InstallApp(ctx context.Context, request InstallAppRequest) (*AppInfo, error) {
	var info AppInfo
	if err := a.conn.call(ctx, RequestInstallApp, request, ResponseAppInstalled, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// EnableApp enables an installed app. Cells that failed to start are
// reported as an error even though the app record exists.
func (a *AdminClient) EnableApp(ctx context.Context, appID string) (*AppInfo, error) {
	var response enableResponse
	err := a.conn.call(ctx, RequestEnableApp, appIDRequest{InstalledAppID: appID}, ResponseAppEnabled, &response)
	if err != nil {
		return nil, err
	}
	if len(response.Errors) > 0 {
		return &response.App, &ConductorError{Kind: KindInternal, Message: fmt.Sprintf("enabling %s: %v", appID, response.Errors)}
	}
	return &response.App, nil
}

// DisableApp disables an installed app.
func (a *AdminClient) DisableApp(ctx context.Context, appID string) error {
	return a.conn.call(ctx, RequestDisableApp, appIDRequest{InstalledAppID: appID}, ResponseAppDisabled, nil)
}

// UninstallApp removes an installed app.
func (a *AdminClient) UninstallApp(ctx context.Context, appID string) error {
	return a.conn.call(ctx, RequestUninstallApp, appIDRequest{InstalledAppID: appID}, ResponseAppUninstalled, nil)
}

// IssueAppAuthToken issues a token for one app connection.
func (a *AdminClient) IssueAppAuthToken(ctx context.Context, appID string, expirySeconds uint64, singleUse bool) (*AppAuthToken, error) {
	var token AppAuthToken
	request := issueTokenRequest{InstalledAppID: appID, ExpirySeconds: expirySeconds, SingleUse: singleUse}
	if err := a.conn.call(ctx, RequestIssueAppAuthToken, request, ResponseAppAuthTokenIssued, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// GraftRecords appends records to cell's source chain. With validate
// false the conductor trusts the records as-is.
func (a *AdminClient) GraftRecords(ctx context.Context, cell hashes.CellID, validate bool, records []SignedRecord) error {
	request := graftRequest{CellID: cell, Validate: validate, Records: records}
	return a.conn.call(ctx, RequestGraftRecords, request, ResponseRecordsGrafted, nil)
}

// ListAppCells lists the cells of an installed app.
func (a *AdminClient) ListAppCells(ctx context.Context, appID string) ([]hashes.CellID, error) {
	var cells []hashes.CellID
	err := a.conn.call(ctx, RequestListAppCells, appIDRequest{InstalledAppID: appID}, ResponseAppCellsListed, &cells)
	if err != nil {
		return nil, err
	}
	return cells, nil
}
