// Package client is the public entry point: it builds sessions and wraps
// the backend's method catalog in typed calls.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luciancaetano/wadash"
	"github.com/luciancaetano/wadash/internal/rpc"
	"github.com/luciancaetano/wadash/internal/websocket"
)

// DefaultMediaTimeout bounds media downloads, which can be large.
const DefaultMediaTimeout = 120 * time.Second

type (
	// SessionConfig configures a session; see DefaultConfig.
	SessionConfig = rpc.SessionConfig
	// TransportConfig holds the WebSocket connection parameters.
	TransportConfig = websocket.TransportConfig
	// BackoffConfig controls the delay between reconnect attempts.
	BackoffConfig = rpc.BackoffConfig
	// Reconnector keeps a session connected until its owner closes it.
	Reconnector = rpc.Reconnector
)

// Errors returned by calls; match them with errors.Is and errors.As.
type (
	RPCError      = rpc.RPCError
	TimeoutError  = rpc.TimeoutError
	SendError     = rpc.SendError
	ProtocolError = rpc.ProtocolError
)

var (
	ErrConnect      = rpc.ErrConnect
	ErrNotConnected = rpc.ErrNotConnected
	ErrDisconnected = rpc.ErrDisconnected
	ErrSend         = rpc.ErrSend
	ErrTimeout      = rpc.ErrTimeout
	ErrRPC          = rpc.ErrRPC
	ErrProtocol     = rpc.ErrProtocol
	ErrClosed       = rpc.ErrClosed
)

// DefaultConfig returns the default session configuration for url.
func DefaultConfig(url string) *SessionConfig {
	return rpc.DefaultSessionConfig(url)
}

// NewSession creates a disconnected session.
func NewSession(cfg *SessionConfig) (*rpc.Session, error) {
	return rpc.New(cfg)
}

// NewReconnector keeps session connected with the given backoff.
func NewReconnector(session rpc.Connector, cfg BackoffConfig, opts ...rpc.ReconnectorOption) *Reconnector {
	return rpc.NewReconnector(session, cfg, opts...)
}

// Decode unmarshals a call result into T.
//
//	status, err := client.Decode[client.Status](c.Status(ctx))
func Decode[T any](raw json.RawMessage, err error) (T, error) {
	var v T
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("client: decode result: %w", err)
	}
	return v, nil
}

// Ptr returns a pointer to v, for optional parameters.
func Ptr[T any](v T) *T {
	return &v
}

// Client issues the backend's methods over a session.
type Client struct {
	session      wadash.Session
	mediaTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithMediaTimeout overrides the timeout of media downloads.
func WithMediaTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.mediaTimeout = d
		}
	}
}

// New creates a Client issuing calls over session.
func New(session wadash.Session, opts ...Option) *Client {
	c := &Client{
		session:      session,
		mediaTimeout: DefaultMediaTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the underlying session.
func (c *Client) Session() wadash.Session {
	return c.session
}

// Connected reports whether the session can issue calls.
func (c *Client) Connected() bool {
	return c.session.Connected()
}

// Call issues an arbitrary method.
func (c *Client) Call(ctx context.Context, method string, params any, opts ...wadash.CallOption) (json.RawMessage, error) {
	return c.session.Call(ctx, method, params, opts...)
}

// Status returns the backend connection and pairing state.
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodStatus, nil)
}

// Start starts the backend messaging session.
func (c *Client) Start(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodStart, nil)
}

// Stop stops the backend messaging session.
func (c *Client) Stop(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodStop, nil)
}

// Restart clears the backend session and starts it again.
func (c *Client) Restart(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodRestart, nil)
}

// Reset logs the backend out and deletes its stored session.
func (c *Client) Reset(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodReset, nil)
}

// Diagnostics returns the backend's diagnostic report.
func (c *Client) Diagnostics(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodDiagnostics, nil)
}

// QR returns the current pairing code. The backend answers with error code
// wadash.JSONRPCNoQR when none is available.
func (c *Client) QR(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodQR, nil)
}

// Send sends a message to a phone or group.
func (c *Client) Send(ctx context.Context, req *SendRequest) (json.RawMessage, error) {
	if req == nil {
		return nil, errors.New("client: nil send request")
	}
	return c.session.Call(ctx, wadash.MethodSend, req)
}

// Media downloads the media of a received message, with the media timeout.
func (c *Client) Media(ctx context.Context, messageID string) (json.RawMessage, error) {
	params := map[string]any{"message_id": messageID}
	return c.session.Call(ctx, wadash.MethodMedia, params, wadash.WithTimeout(c.mediaTimeout))
}

// Groups lists the groups the account belongs to.
func (c *Client) Groups(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodGroups, nil)
}

// GroupInfo returns the metadata and participants of a group.
func (c *Client) GroupInfo(ctx context.Context, groupID string) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodGroupInfo, map[string]any{"group_id": groupID})
}

// GroupUpdate changes the group name and/or topic. Nil values are not sent.
func (c *Client) GroupUpdate(ctx context.Context, groupID string, name, topic *string) (json.RawMessage, error) {
	params := map[string]any{"group_id": groupID}
	if name != nil {
		params["name"] = *name
	}
	if topic != nil {
		params["topic"] = *topic
	}
	return c.session.Call(ctx, wadash.MethodGroupUpdate, params)
}

// ContactCheck reports which phones are registered on the network.
func (c *Client) ContactCheck(ctx context.Context, phones []string) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodContactCheck, map[string]any{"phones": phones})
}

// ContactProfilePic returns the profile picture of jid, or its thumbnail when preview is set.
func (c *Client) ContactProfilePic(ctx context.Context, jid string, preview bool) (json.RawMessage, error) {
	params := map[string]any{"jid": jid, "preview": preview}
	return c.session.Call(ctx, wadash.MethodContactProfilePic, params)
}

// Contacts lists contacts matching query; an empty query lists all.
func (c *Client) Contacts(ctx context.Context, query string) (json.RawMessage, error) {
	var params map[string]any
	if query != "" {
		params = map[string]any{"query": query}
	}
	return c.session.Call(ctx, wadash.MethodContacts, params)
}

// ContactInfo returns what the backend knows about phone.
func (c *Client) ContactInfo(ctx context.Context, phone string) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodContactInfo, map[string]any{"phone": phone})
}

// ChatHistory returns stored messages of one chat.
func (c *Client) ChatHistory(ctx context.Context, req *ChatHistoryRequest) (json.RawMessage, error) {
	if req == nil {
		return nil, errors.New("client: nil chat history request")
	}
	return c.session.Call(ctx, wadash.MethodChatHistory, req)
}

// Typing sends a chat state: "composing" or "paused". media is "" for text
// or "audio" for a voice recording and is omitted when empty.
func (c *Client) Typing(ctx context.Context, jid, state, media string) (json.RawMessage, error) {
	if state == "" {
		state = "composing"
	}
	params := map[string]any{"jid": jid, "state": state}
	if media != "" {
		params["media"] = media
	}
	return c.session.Call(ctx, wadash.MethodTyping, params)
}

// Presence sets "available" or "unavailable".
func (c *Client) Presence(ctx context.Context, status string) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodPresence, map[string]any{"status": status})
}

// MarkRead marks messages of a chat as read. senderJID is needed for group
// chats and omitted when empty.
func (c *Client) MarkRead(ctx context.Context, messageIDs []string, chatJID, senderJID string) (json.RawMessage, error) {
	params := map[string]any{"message_ids": messageIDs, "chat_jid": chatJID}
	if senderJID != "" {
		params["sender_jid"] = senderJID
	}
	return c.session.Call(ctx, wadash.MethodMarkRead, params)
}

// GroupParticipantsAdd adds participants to a group.
func (c *Client) GroupParticipantsAdd(ctx context.Context, groupID string, participants []string) (json.RawMessage, error) {
	params := map[string]any{"group_id": groupID, "participants": participants}
	return c.session.Call(ctx, wadash.MethodGroupParticipantsAdd, params)
}

// GroupParticipantsRemove removes participants from a group.
func (c *Client) GroupParticipantsRemove(ctx context.Context, groupID string, participants []string) (json.RawMessage, error) {
	params := map[string]any{"group_id": groupID, "participants": participants}
	return c.session.Call(ctx, wadash.MethodGroupParticipantsRemove, params)
}

// GroupInviteLink returns the group's current invite link.
func (c *Client) GroupInviteLink(ctx context.Context, groupID string) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodGroupInviteLink, map[string]any{"group_id": groupID})
}

// GroupRevokeInvite revokes the invite link and returns the new one.
func (c *Client) GroupRevokeInvite(ctx context.Context, groupID string) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodGroupRevokeInvite, map[string]any{"group_id": groupID})
}

// RateLimitGet returns the backend's pacing config and stats.
func (c *Client) RateLimitGet(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodRateLimitGet, nil)
}

// RateLimitSet updates the backend's pacing; nil fields are unchanged.
func (c *Client) RateLimitSet(ctx context.Context, settings *RateLimitSettings) (json.RawMessage, error) {
	if settings == nil {
		settings = &RateLimitSettings{}
	}
	return c.session.Call(ctx, wadash.MethodRateLimitSet, settings)
}

// RateLimitStats returns the backend's sending counters.
func (c *Client) RateLimitStats(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodRateLimitStats, nil)
}

// RateLimitUnpause resumes sending after the backend paused on a low
// response rate.
func (c *Client) RateLimitUnpause(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, wadash.MethodRateLimitUnpause, nil)
}
