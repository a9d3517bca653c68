package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an identity does not exist.
	ErrNotFound = errors.New("identity not found")
	// ErrNameTaken is returned when creating an identity with an existing name.
	ErrNameTaken = errors.New("name already taken")
	// ErrEmailTaken is returned when creating an identity with an existing email.
	ErrEmailTaken = errors.New("email already taken")
	// ErrBanned is returned when creating an identity whose name is on the ban list.
	ErrBanned = errors.New("name is banned")
	// ErrProtectedBadge is returned when a mutation touches the owner badge.
	ErrProtectedBadge = errors.New("owner badge is protected")
	// ErrInvalidBadge is returned for empty badge names.
	ErrInvalidBadge = errors.New("invalid badge")
)

// Identity represents a registered chat identity.
type Identity struct {
	Name         string
	Email        string
	PasswordHash string
	Badges       []string
	Banned       bool
	Muted        bool
	CreatedAt    time.Time
	LastLogin    time.Time
	Addresses    []string
	MessageCount int64
}

// IsOwner reports whether the identity holds the owner badge.
func (i *Identity) IsOwner() bool {
	return HasBadge(i.Badges, BadgeOwner)
}

// NewIdentity carries the fields required to create an identity.
type NewIdentity struct {
	Name         string
	Email        string
	PasswordHash string
	Address      string
	CreatedAt    time.Time
}

// Sanction is an entry of the ban or mute set.
type Sanction struct {
	Name string
	By   string
	At   time.Time
}

// IdentityStore handles identity persistence.
//
// Implementations must make CreateIdentity a single atomic check-and-create: the name must
// not exist, the email must not be used, and the very first successful creation ever
// receives the owner badges.
type IdentityStore interface {
	// CreateIdentity creates an identity. The first identity ever created gets
	// OwnerBadges, every later one gets DefaultBadges.
	CreateIdentity(ctx context.Context, in NewIdentity) (*Identity, error)

	// GetIdentity retrieves an identity by name.
	GetIdentity(ctx context.Context, name string) (*Identity, error)

	// RecordLogin updates last login time and adds the address to the observed set.
	RecordLogin(ctx context.Context, name, address string, at time.Time) error

	// IncrementMessageCount bumps the message counter and returns the new value.
	IncrementMessageCount(ctx context.Context, name string) (int64, error)

	// SetBanned toggles the banned flag and maintains the ban set.
	SetBanned(ctx context.Context, name string, banned bool, by string, at time.Time) error

	// SetMuted toggles the muted flag and maintains the mute set.
	SetMuted(ctx context.Context, name string, muted bool, by string, at time.Time) error

	// AddBadge adds a badge and returns the resulting set. Adding a present badge is a no-op.
	AddBadge(ctx context.Context, name, badge string) ([]string, error)

	// RemoveBadge removes a badge and returns the resulting set.
	RemoveBadge(ctx context.Context, name, badge string) ([]string, error)

	// DeleteIdentity removes the identity and its cart/review data and bans the name.
	DeleteIdentity(ctx context.Context, name, by string, at time.Time) error

	// ListBans returns the ban set ordered by time.
	ListBans(ctx context.Context) ([]Sanction, error)

	// ListMutes returns the mute set ordered by time.
	ListMutes(ctx context.Context) ([]Sanction, error)

	// Close releases the underlying resources.
	Close() error
}
