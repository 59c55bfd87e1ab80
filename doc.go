// Package wadash provides a JSON-RPC 2.0 client for a messaging backend reached over a
// persistent WebSocket connection, plus the dashboard that drives it.
//
// The backend is an opaque peer. The client sends requests, pairs them with responses
// that may arrive in any order, and routes server-pushed events to the application.
//
// # Architecture
//
// One Session owns one connection at a time. Callers on any goroutine issue calls; a
// single receive loop reads every inbound frame and either resolves the pending call
// whose id it carries or hands it to the event sink. The pending-call table is the only
// state shared between callers and the loop.
//
//	caller ── Call ──▶ pending table ──▶ Transport.Send ──▶ backend
//	                        ▲                                  │
//	                        └────── receive loop ◀── Transport.Receive
//	                                     │
//	                                     └──▶ event handler / subscriptions
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/wadash/client"
//	)
//
//	session, err := client.NewSession(client.DefaultConfig("ws://localhost:9400/ws/rpc"))
//	if err != nil {
//	    return err
//	}
//	if err := session.Connect(ctx); err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	c := client.New(session)
//	status, err := client.Decode[client.Status](c.Status(ctx))
//
// # Protocol Format
//
// Every frame is one JSON object in one WebSocket message:
//
//	request:  {"jsonrpc":"2.0","id":1,"method":"status","params":{...}}
//	response: {"id":1,"result":...}
//	error:    {"id":1,"error":{"code":-32000,"message":"..."}}
//	event:    {"method":"event.message","params":{...}}
//
// Events are told apart from responses only by the missing id.
//
// # Failure Handling
//
//   - Calls fail immediately with ErrNotConnected while disconnected
//   - Each call has a timeout (30s default, 120s for media downloads)
//   - A timed out call releases its id; a late response is dropped
//   - Malformed frames and failing event handlers are logged and skipped
//   - A dropped connection fails every pending call with ErrDisconnected
//   - Reconnector re-dials with exponential backoff
//
// # Connection Defaults
//
//   - Maximum frame: 100MB (embedded media)
//   - Ping every 5 minutes, 60s to answer
//   - Graceful close waits up to 10s
package wadash
