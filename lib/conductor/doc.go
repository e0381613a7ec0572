// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package conductor is the client for the conductor's two websocket
// endpoints: the admin interface ([AdminClient]), which installs and
// manages apps, and the app interface ([AppClient]), which invokes
// functions of one installed app.
//
// Every websocket binary frame is one CBOR [Message]. Requests carry a
// connection-unique id; the conductor answers with a response carrying
// the same id, and may send unsolicited signals at any time. Each
// connection runs exactly one reader goroutine that routes responses
// to waiting callers and discards signals. Calls block on their own
// channel until the response arrives, the context ends, or the
// connection closes.
//
// Request payloads are {type, value} maps. A successful response has
// the type the operation expects; an error response has type "error"
// and a {kind, message} value. Anything else is a [*ProtocolError]
// carrying the raw response bytes. Conductor errors are also reachable
// as [*ConductorError] through errors.As, and [IsAppAlreadyInstalled],
// [IsCellAlreadyExists] and [IsChainHeadMoved] classify the conflicts
// the reconciler recovers from.
//
// The package conductortest provides an in-process fake conductor.
package conductor
