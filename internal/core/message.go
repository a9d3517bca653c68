package core

import "time"

// Message is the domain model for a chat message. It is never mutated after creation.
type Message struct {
	ID        string
	Author    string
	Text      string
	Time      string // display time, HH:MM
	Badges    []string
	CreatedAt time.Time
}

// Timestamp returns the creation time in Unix milliseconds.
func (m Message) Timestamp() int64 {
	return m.CreatedAt.UnixMilli()
}

// PresenceEntry is a snapshot of one joined connection.
type PresenceEntry struct {
	ClientID     string
	IdentityName string
	Badges       []string
	Address      string
}
