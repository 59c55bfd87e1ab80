package wadash

// Backend RPC methods.
const (
	MethodStatus                  = "status"
	MethodStart                   = "start"
	MethodStop                    = "stop"
	MethodRestart                 = "restart"
	MethodReset                   = "reset"
	MethodDiagnostics             = "diagnostics"
	MethodQR                      = "qr"
	MethodSend                    = "send"
	MethodMedia                   = "media"
	MethodGroups                  = "groups"
	MethodGroupInfo               = "group_info"
	MethodGroupUpdate             = "group_update"
	MethodContactCheck            = "contact_check"
	MethodContactProfilePic       = "contact_profile_pic"
	MethodContacts                = "contacts"
	MethodContactInfo             = "contact_info"
	MethodChatHistory             = "chat_history"
	MethodTyping                  = "typing"
	MethodPresence                = "presence"
	MethodMarkRead                = "mark_read"
	MethodGroupParticipantsAdd    = "group_participants_add"
	MethodGroupParticipantsRemove = "group_participants_remove"
	MethodGroupInviteLink         = "group_invite_link"
	MethodGroupRevokeInvite       = "group_revoke_invite"
	MethodRateLimitGet            = "rate_limit_get"
	MethodRateLimitSet            = "rate_limit_set"
	MethodRateLimitStats          = "rate_limit_stats"
	MethodRateLimitUnpause        = "rate_limit_unpause"
)

// EventPrefix marks a server-pushed notification. Event frames carry no id.
const EventPrefix = "event."

// Events pushed by the backend (names are reported with EventPrefix stripped).
const (
	EventStatus  = "status"
	EventMessage = "message"
	EventQR      = "qr"
)

// Standard error messages
const (
	ErrNotConnectedMessage = "not connected to RPC endpoint"
	ErrConnectionLost      = "connection to RPC endpoint lost"
)

// JSON-RPC error codes (following JSON-RPC 2.0 specification)
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603

	// Implementation-defined codes used by the messaging backend.
	JSONRPCServerError = -32000
	JSONRPCNoQR        = -32001
)

// JSON-RPC version
const (
	JSONRPCVersion = "2.0"
)
