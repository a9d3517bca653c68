package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin binds the connection to an identity.
	CommandJoin CommandKind = iota
	// CommandSend appends a chat message and fans it out.
	CommandSend
	// CommandModerate applies an owner-issued moderation action.
	CommandModerate
)

// Command represents an action requested by a client.
type Command struct {
	Kind         CommandKind
	IdentityName string // CommandJoin
	Token        string // CommandJoin, optional
	Text         string // CommandSend
	Action       Action // CommandModerate
}
