// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conductortest

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/hostsync/lib/codec"
	"github.com/bureau-foundation/hostsync/lib/conductor"
	"github.com/bureau-foundation/hostsync/lib/hashes"
	"github.com/bureau-foundation/hostsync/lib/signing"
)

type serverConn struct {
	ws      *websocket.Conn
	admin   bool
	writeMu sync.Mutex

	// appID is the app an app connection authenticated for.
	appID string
}

func (s *serverConn) send(message conductor.Message) {
	frame, err := codec.Marshal(message)
	if err != nil {
		panic("conductortest: encoding frame: " + err.Error())
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ws.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *Conductor) serve(w http.ResponseWriter, r *http.Request, admin bool) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	connection := &serverConn{ws: ws, admin: admin}
	c.mu.Lock()
	c.origins = append(c.origins, r.Header.Get("Origin"))
	c.connections = append(c.connections, connection)
	c.mu.Unlock()
	defer ws.Close()

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var message conductor.Message
		if err := codec.Unmarshal(frame, &message); err != nil || message.Type != conductor.MessageRequest {
			continue
		}
		var request conductor.Payload
		if err := codec.Unmarshal(message.Data, &request); err != nil {
			c.respond(connection, message.ID, conductor.ResponseError,
				errorf(conductor.KindDeserialization, "decoding request: %v", err))
			continue
		}

		c.mu.Lock()
		dropped := c.dropped[request.Type]
		c.mu.Unlock()

		responseType, value := c.handle(connection, request)
		if failure := c.takeFailure(c.lateFails, request.Type); failure != nil {
			responseType, value = conductor.ResponseError, failure
		}
		if dropped {
			continue
		}
		c.respond(connection, message.ID, responseType, value)
	}
}

func (c *Conductor) respond(connection *serverConn, id uint64, responseType string, value any) {
	payload := conductor.Payload{Type: responseType}
	if value != nil {
		payload.Value = encodeValue(value)
	}
	connection.send(conductor.Message{Type: conductor.MessageResponse, ID: id, Data: encodeValue(payload)})
}

// handle applies one request and returns the response type and value.
func (c *Conductor) handle(connection *serverConn, request conductor.Payload) (string, any) {
	record := request.Type
	var appID struct {
		InstalledAppID string `cbor:"installed_app_id"`
	}
	if len(request.Value) > 0 && codec.Unmarshal(request.Value, &appID) == nil && appID.InstalledAppID != "" {
		record += " " + appID.InstalledAppID
	}
	c.mu.Lock()
	c.requests = append(c.requests, record)
	c.mu.Unlock()

	if failure := c.takeFailure(c.failures, request.Type); failure != nil {
		return conductor.ResponseError, failure
	}

	if !connection.admin {
		return c.handleApp(connection, request)
	}

	switch request.Type {
	case conductor.RequestAttachAppInterface:
		var attach struct {
			Port int `cbor:"port"`
		}
		codec.Unmarshal(request.Value, &attach)
		if attach.Port == 0 {
			attach.Port = 42233
		}
		return conductor.ResponseAppInterfaceAttached, attach

	case conductor.RequestGenerateAgentKey:
		return conductor.ResponseAgentKeyGenerated, NewAgentKey()

	case conductor.RequestListApps:
		var filter struct {
			StatusFilter conductor.StatusFilter `cbor:"status_filter"`
		}
		codec.Unmarshal(request.Value, &filter)
		c.mu.Lock()
		defer c.mu.Unlock()
		apps := []conductor.AppInfo{}
		for _, id := range c.order {
			info := c.apps[id]
			if filter.StatusFilter == conductor.FilterAll || string(info.Status) == string(filter.StatusFilter) {
				apps = append(apps, *info)
			}
		}
		return conductor.ResponseAppsListed, apps

	case conductor.RequestInstallApp:
		var install conductor.InstallAppRequest
		if err := codec.Unmarshal(request.Value, &install); err != nil {
			return conductor.ResponseError, errorf(conductor.KindDeserialization, "install_app: %v", err)
		}
		return c.install(install)

	case conductor.RequestEnableApp, conductor.RequestDisableApp:
		c.mu.Lock()
		defer c.mu.Unlock()
		info, ok := c.apps[appID.InstalledAppID]
		if !ok {
			return conductor.ResponseError, errorf(conductor.KindAppNotInstalled, "AppNotInstalled(%q)", appID.InstalledAppID)
		}
		if request.Type == conductor.RequestDisableApp {
			info.Status = conductor.StatusDisabled
			return conductor.ResponseAppDisabled, nil
		}
		info.Status = conductor.StatusEnabled
		return conductor.ResponseAppEnabled, map[string]any{"app": *info}

	case conductor.RequestUninstallApp:
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.apps[appID.InstalledAppID]; !ok {
			return conductor.ResponseError, errorf(conductor.KindAppNotInstalled, "AppNotInstalled(%q)", appID.InstalledAppID)
		}
		delete(c.apps, appID.InstalledAppID)
		for index, id := range c.order {
			if id == appID.InstalledAppID {
				c.order = append(c.order[:index], c.order[index+1:]...)
				break
			}
		}
		return conductor.ResponseAppUninstalled, nil

	case conductor.RequestIssueAppAuthToken:
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.apps[appID.InstalledAppID]; !ok {
			return conductor.ResponseError, errorf(conductor.KindAppNotInstalled, "AppNotInstalled(%q)", appID.InstalledAppID)
		}
		token := make([]byte, 16)
		rand.Read(token)
		c.tokens[hex.EncodeToString(token)] = appID.InstalledAppID
		return conductor.ResponseAppAuthTokenIssued, conductor.AppAuthToken{Token: token}

	case conductor.RequestGraftRecords:
		var graft struct {
			CellID  hashes.CellID            `cbor:"cell_id"`
			Records []conductor.SignedRecord `cbor:"records"`
		}
		if err := codec.Unmarshal(request.Value, &graft); err != nil {
			return conductor.ResponseError, errorf(conductor.KindDeserialization, "graft_records: %v", err)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		key := graft.CellID.String()
		c.grafted[key] = append(c.grafted[key], graft.Records...)
		return conductor.ResponseRecordsGrafted, nil

	case conductor.RequestListAppCells:
		c.mu.Lock()
		defer c.mu.Unlock()
		info, ok := c.apps[appID.InstalledAppID]
		if !ok {
			return conductor.ResponseError, errorf(conductor.KindAppNotInstalled, "AppNotInstalled(%q)", appID.InstalledAppID)
		}
		return conductor.ResponseAppCellsListed, info.Cells()
	}
	return conductor.ResponseError, errorf(conductor.KindDeserialization, "unknown admin request %q", request.Type)
}

func (c *Conductor) install(request conductor.InstallAppRequest) (string, any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.apps[request.InstalledAppID]; exists {
		return conductor.ResponseError, errorf(conductor.KindAppAlreadyInstalled, "AppAlreadyInstalled(%q)", request.InstalledAppID)
	}
	if err := request.AgentKey.Validate(); err != nil {
		return conductor.ResponseError, errorf(conductor.KindDeserialization, "agent_key: %v", err)
	}

	info := &conductor.AppInfo{
		InstalledAppID: request.InstalledAppID,
		AgentPubKey:    request.AgentKey,
		Status:         conductor.StatusDisabled,
		CellInfo:       make(map[string][]conductor.CellInfo),
	}
	for role, settings := range request.RoleSettings {
		var cell hashes.CellID
		switch settings.Type {
		case conductor.RoleUseExisting:
			if settings.CellID == nil || !c.cellExistsLocked(*settings.CellID) {
				return conductor.ResponseError, errorf(conductor.KindInternal, "CellMissing for role %s", role)
			}
			cell = *settings.CellID
		default:
			cell = hashes.CellID{DnaHash: DnaHash(role), AgentPubKey: request.AgentKey}
			if c.cellExistsLocked(cell) {
				return conductor.ResponseError, errorf(conductor.KindCellAlreadyExists, "CellAlreadyExists(%s)", cell)
			}
			c.proofs[request.InstalledAppID+"/"+role] = settings.MembraneProof
		}
		info.CellInfo[role] = []conductor.CellInfo{{Type: conductor.CellProvisioned, CellID: &cell, Name: role}}
	}
	c.storeLocked(info)
	return conductor.ResponseAppInstalled, *info
}

func (c *Conductor) cellExistsLocked(cell hashes.CellID) bool {
	want := cell.String()
	for _, info := range c.apps {
		for _, existing := range info.Cells() {
			if existing.String() == want {
				return true
			}
		}
	}
	return false
}

func (c *Conductor) handleApp(connection *serverConn, request conductor.Payload) (string, any) {
	if request.Type == conductor.RequestAuthenticate {
		var auth struct {
			Token []byte `cbor:"token"`
		}
		codec.Unmarshal(request.Value, &auth)
		c.mu.Lock()
		appID, ok := c.tokens[hex.EncodeToString(auth.Token)]
		c.mu.Unlock()
		if !ok {
			return conductor.ResponseError, errorf(conductor.KindUnauthorized, "invalid token")
		}
		connection.appID = appID
		return conductor.ResponseAuthenticated, nil
	}
	if connection.appID == "" {
		return conductor.ResponseError, errorf(conductor.KindUnauthorized, "connection not authenticated")
	}

	switch request.Type {
	case conductor.RequestAppInfo:
		c.mu.Lock()
		defer c.mu.Unlock()
		info, ok := c.apps[connection.appID]
		if !ok {
			return conductor.ResponseAppInfo, nil
		}
		return conductor.ResponseAppInfo, *info

	case conductor.RequestCallZome:
		var call struct {
			Bytes     []byte `cbor:"bytes"`
			Signature []byte `cbor:"signature"`
		}
		if err := codec.Unmarshal(request.Value, &call); err != nil {
			return conductor.ResponseError, errorf(conductor.KindDeserialization, "call_zome: %v", err)
		}
		var unsigned signing.UnsignedCall
		if err := codec.Unmarshal(call.Bytes, &unsigned); err != nil {
			return conductor.ResponseError, errorf(conductor.KindDeserialization, "call_zome bytes: %v", err)
		}
		if err := signing.VerifyBytes(unsigned.Provenance, call.Bytes, call.Signature); err != nil {
			return conductor.ResponseError, errorf(conductor.KindInvalidSignature, "zome call signature: %v", err)
		}
		c.mu.Lock()
		handler := c.zomeHandler
		c.mu.Unlock()
		if handler == nil {
			return conductor.ResponseError, errorf(conductor.KindInternal, "no zome handler for %s/%s", unsigned.Zome, unsigned.Function)
		}
		result, err := handler(unsigned)
		if err != nil {
			return conductor.ResponseError, errorf(conductor.KindInternal, "%v", err)
		}
		return conductor.ResponseZomeCalled, encodeValue(result)
	}
	return conductor.ResponseError, errorf(conductor.KindDeserialization, "unknown app request %q", request.Type)
}
