package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessage broadcasts a chat message to every joined client.
	EventMessage EventKind = iota
	// EventHistory replays recent messages to a joiner.
	EventHistory
	// EventPresence broadcasts the presence list.
	EventPresence
	// EventSession confirms a join with the bound identity and its badges.
	EventSession
	// EventError notifies a client about a rejected operation.
	EventError
	// EventBanned tells a client its identity was banned.
	EventBanned
	// EventAccountDeleted tells a client its identity was deleted.
	EventAccountDeleted
	// EventBadgeUpdate delivers the new badge set of the client's identity.
	EventBadgeUpdate
	// EventClose asks the transport to close the connection after everything queued before it.
	EventClose
)

// Event is sent to clients to describe what happened in the system.
// Slices inside an event are shared between recipients and must not be modified.
type Event struct {
	Kind         EventKind
	Message      Message         // EventMessage
	Messages     []Message       // EventHistory
	Presence     []PresenceEntry // EventPresence
	IdentityName string          // EventSession
	Badges       []string        // EventSession, EventBadgeUpdate
	Error        *CoreError      // EventError
	Reason       string          // EventClose
}
