package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin     = "join"
	InboundTypeSend     = "send"
	InboundTypeModerate = "moderate"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameHistory        = "history"
	EventNameMessage        = "message"
	EventNamePresence       = "presence"
	EventNameSession        = "session"
	EventNameBanned         = "banned"
	EventNameAccountDeleted = "accountDeleted"
	EventNameBadgeUpdate    = "badgeUpdate"
)

// JoinData binds the connection to a registered identity.
type JoinData struct {
	IdentityName string `json:"identityName"`
	Token        string `json:"token,omitempty"`
}

// SendData is a chat message from the client.
type SendData struct {
	Text string `json:"text"`
}

// ModerateData is an owner-issued moderation request.
type ModerateData struct {
	Action     string `json:"action"`
	TargetName string `json:"targetName"`
	Badge      string `json:"badge,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// ChatMessage is a message as clients see it.
type ChatMessage struct {
	ID        string   `json:"id"`
	Author    string   `json:"author"`
	Text      string   `json:"text"`
	Time      string   `json:"time"`
	Badges    []string `json:"badges"`
	Timestamp int64    `json:"timestamp"`
}

// PresenceEntry is one joined connection in the presence list.
type PresenceEntry struct {
	IdentityName string   `json:"identityName"`
	Badges       []string `json:"badges"`
	Address      string   `json:"address"`
}

// EventHistory replays recent messages to a joiner.
type EventHistory struct {
	Messages []ChatMessage `json:"messages"`
}

// EventPresence carries the full presence list.
type EventPresence struct {
	Entries []PresenceEntry `json:"entries"`
}

// EventSession confirms a join.
type EventSession struct {
	IdentityName string   `json:"identityName"`
	Badges       []string `json:"badges"`
}

// EventBadgeUpdate carries the identity's new badge set.
type EventBadgeUpdate struct {
	Badges []string `json:"badges"`
}

// Empty is the payload of events without data.
type Empty struct{}

// Error describes a rejected operation.
type Error struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}
