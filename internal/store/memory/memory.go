package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/lounge-server/internal/store"
)

// MemoryStore implements store.IdentityStore in process memory.
// Data does not survive a restart.
type MemoryStore struct {
	mu           sync.RWMutex
	identities   map[string]*store.Identity
	emails       map[string]string
	bans         map[string]store.Sanction
	mutes        map[string]store.Sanction
	ownerClaimed bool
}

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]*store.Identity),
		emails:     make(map[string]string),
		bans:       make(map[string]store.Sanction),
		mutes:      make(map[string]store.Sanction),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateIdentity creates an identity, assigning owner badges to the very first one.
func (s *MemoryStore) CreateIdentity(_ context.Context, in store.NewIdentity) (*store.Identity, error) {
	email := strings.ToLower(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, banned := s.bans[in.Name]; banned {
		return nil, store.ErrBanned
	}
	if _, exists := s.identities[in.Name]; exists {
		return nil, store.ErrNameTaken
	}
	if _, exists := s.emails[email]; exists {
		return nil, store.ErrEmailTaken
	}

	badges := store.DefaultBadges
	if !s.ownerClaimed {
		badges = store.OwnerBadges
		s.ownerClaimed = true
	}

	ident := &store.Identity{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Badges:       slices.Clone(badges),
		CreatedAt:    in.CreatedAt,
		LastLogin:    in.CreatedAt,
	}
	if in.Address != "" {
		ident.Addresses = []string{in.Address}
	}
	s.identities[in.Name] = ident
	s.emails[email] = in.Name

	return cloneIdentity(ident), nil
}

// GetIdentity retrieves an identity by name.
func (s *MemoryStore) GetIdentity(_ context.Context, name string) (*store.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.identities[name]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", name, store.ErrNotFound)
	}
	return cloneIdentity(ident), nil
}

// RecordLogin updates last login and the observed address set.
func (s *MemoryStore) RecordLogin(_ context.Context, name, address string, at time.Time) error {
	return s.update(name, func(ident *store.Identity) {
		ident.LastLogin = at
		if address != "" && !slices.Contains(ident.Addresses, address) {
			ident.Addresses = append(ident.Addresses, address)
		}
	})
}

// IncrementMessageCount bumps the message counter.
func (s *MemoryStore) IncrementMessageCount(_ context.Context, name string) (int64, error) {
	var count int64
	err := s.update(name, func(ident *store.Identity) {
		ident.MessageCount++
		count = ident.MessageCount
	})
	return count, err
}

// SetBanned toggles the banned flag and the ban set.
func (s *MemoryStore) SetBanned(_ context.Context, name string, banned bool, by string, at time.Time) error {
	return s.update(name, func(ident *store.Identity) {
		ident.Banned = banned
		if banned {
			s.bans[name] = store.Sanction{Name: name, By: by, At: at}
		} else {
			delete(s.bans, name)
		}
	})
}

// SetMuted toggles the muted flag and the mute set.
func (s *MemoryStore) SetMuted(_ context.Context, name string, muted bool, by string, at time.Time) error {
	return s.update(name, func(ident *store.Identity) {
		ident.Muted = muted
		if muted {
			s.mutes[name] = store.Sanction{Name: name, By: by, At: at}
		} else {
			delete(s.mutes, name)
		}
	})
}

// AddBadge adds a badge to the identity's set.
func (s *MemoryStore) AddBadge(_ context.Context, name, badge string) ([]string, error) {
	if err := store.CheckMutableBadge(badge); err != nil {
		return nil, err
	}
	badge = strings.TrimSpace(badge)

	var badges []string
	err := s.update(name, func(ident *store.Identity) {
		ident.Badges = store.WithBadge(ident.Badges, badge)
		badges = slices.Clone(ident.Badges)
	})
	return badges, err
}

// RemoveBadge removes a badge from the identity's set.
func (s *MemoryStore) RemoveBadge(_ context.Context, name, badge string) ([]string, error) {
	if err := store.CheckMutableBadge(badge); err != nil {
		return nil, err
	}
	badge = strings.TrimSpace(badge)

	var badges []string
	err := s.update(name, func(ident *store.Identity) {
		ident.Badges = store.WithoutBadge(ident.Badges, badge)
		badges = slices.Clone(ident.Badges)
	})
	return badges, err
}

// DeleteIdentity removes the identity and bans its name.
func (s *MemoryStore) DeleteIdentity(_ context.Context, name, by string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[name]
	if !ok {
		return fmt.Errorf("delete %q: %w", name, store.ErrNotFound)
	}
	delete(s.identities, name)
	delete(s.emails, strings.ToLower(ident.Email))
	delete(s.mutes, name)
	s.bans[name] = store.Sanction{Name: name, By: by, At: at}
	return nil
}

// ListBans returns the ban set ordered by time.
func (s *MemoryStore) ListBans(_ context.Context) ([]store.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSanctions(s.bans), nil
}

// ListMutes returns the mute set ordered by time.
func (s *MemoryStore) ListMutes(_ context.Context) ([]store.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedSanctions(s.mutes), nil
}

func (s *MemoryStore) update(name string, fn func(*store.Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[name]
	if !ok {
		return fmt.Errorf("update %q: %w", name, store.ErrNotFound)
	}
	fn(ident)
	return nil
}

func sortedSanctions(m map[string]store.Sanction) []store.Sanction {
	out := make([]store.Sanction, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b store.Sanction) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func cloneIdentity(ident *store.Identity) *store.Identity {
	c := *ident
	c.Badges = slices.Clone(ident.Badges)
	c.Addresses = slices.Clone(ident.Addresses)
	return &c
}
