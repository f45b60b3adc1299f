package domain

// WebSocket event names from client to relay.
const (
	MsgTypeAuth          = "auth"
	MsgTypeHostStart     = "host:start"
	MsgTypeHostUpdate    = "host:update"
	MsgTypeHostEnd       = "host:end"
	MsgTypeListenerJoin  = "listener:join"
	MsgTypeListenerLeave = "listener:leave"
	MsgTypeChatSend      = "chat:send"
	MsgTypePing          = "ping"
)

// WebSocket event names from relay to client.
const (
	MsgTypeHello           = "hello"
	MsgTypeAuthResult      = "auth_result"
	MsgTypeHostStarted     = "host:started"
	MsgTypeStreamState     = "stream:state"
	MsgTypeStreamUpdate    = "stream:update"
	MsgTypeStreamListeners = "stream:listeners"
	MsgTypeStreamEnded     = "stream:ended"
	MsgTypeStreamError     = "stream:error"
	MsgTypeChatMessage     = "chat:message"
	MsgTypePong            = "pong"
)

// Error codes carried by stream:error.
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotLive       = "NOT_LIVE"
	ErrCodeSessionFull   = "SESSION_FULL"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the envelope shared by all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Relay messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type HostStartMessage struct {
	Type   string `json:"type"`
	HostID string `json:"host_id"`
	Track  *Track `json:"track"`
}

type HostUpdateMessage struct {
	Type      string   `json:"type"`
	Position  *float64 `json:"position,omitempty"`
	IsPlaying *bool    `json:"is_playing,omitempty"`
	Track     *Track   `json:"track,omitempty"`
}

type HostEndMessage struct {
	Type   string `json:"type"`
	HostID string `json:"host_id"`
}

type ListenerJoinMessage struct {
	Type        string `json:"type"`
	HostID      string `json:"host_id"`
	DisplayName string `json:"display_name"`
}

type ListenerLeaveMessage struct {
	Type string `json:"type"`
}

type ChatSendMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Relay -> Client messages

// HelloMessage is the relay's greeting carrying the id this connection
// is known by; clients use it for own-message detection in chat.
type HelloMessage struct {
	Type   string `json:"type"`
	ConnID string `json:"conn_id"`
}

type AuthResultMessage struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

type HostStartedMessage struct {
	Type   string `json:"type"`
	HostID string `json:"host_id"`
}

type StreamStateMessage struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

type StreamUpdateMessage struct {
	Type   string `json:"type"`
	Update Update `json:"update"`
}

type StreamListenersMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type StreamEndedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type StreamErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChatMessageOut delivers one chat line to every participant,
// including the sender; clients match SenderID against their own
// connection id for "own message" handling.
type ChatMessageOut struct {
	Type string `json:"type"`
	ChatMessage
}

// NewStreamError builds a stream:error message.
func NewStreamError(code, message string) *StreamErrorMessage {
	return &StreamErrorMessage{
		Type:    MsgTypeStreamError,
		Code:    code,
		Message: message,
	}
}
