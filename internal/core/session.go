package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/lounge-server/internal/store"
	"github.com/vovakirdan/lounge-server/internal/utils"
)

const (
	// MaxMessageRunes caps the length of a trimmed chat message.
	MaxMessageRunes = 500

	// joinAttempts bounds how often join retries when moderation touched the
	// identity between the store lookup and the bind.
	joinAttempts = 3
)

// pendingJoin tracks joins in flight for one identity. Moderation bumps epoch,
// and a join whose lookup predates the bump retries it.
type pendingJoin struct {
	waiters int
	epoch   uint64
}

// Join binds c to the identity called name, replays history and refreshes presence.
func (h *Hub) Join(ctx context.Context, c *Client, name, token string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return coreError(KindValidation, "identity name is required")
	}

	h.mu.Lock()
	_, bound := h.registry.IdentityOf(c)
	h.mu.Unlock()
	if bound {
		return coreError(KindAlreadyBound, "connection already joined")
	}

	if h.opts.Verifier != nil {
		subject, err := h.opts.Verifier.IdentityFromToken(token)
		if err != nil || subject != name {
			return &CoreError{Kind: KindAuthenticationRequired, Message: "valid session token required", Cause: err}
		}
	}

	pj := h.trackJoin(name)
	defer h.untrackJoin(name, pj)

	for range joinAttempts {
		h.mu.Lock()
		epoch := pj.epoch
		h.mu.Unlock()

		ident, err := h.lookup(ctx, name)
		if err != nil {
			return storeError(err, KindAuthenticationRequired)
		}
		if ident.Banned {
			return coreError(KindBanned, "identity is banned")
		}

		done, err := h.bind(c, ident, pj, epoch)
		if done || err != nil {
			return err
		}
	}
	return coreError(KindUnavailable, "identity changed during join, try again")
}

func (h *Hub) trackJoin(name string) *pendingJoin {
	h.mu.Lock()
	defer h.mu.Unlock()
	pj, ok := h.joins[name]
	if !ok {
		pj = &pendingJoin{}
		h.joins[name] = pj
	}
	pj.waiters++
	return pj
}

func (h *Hub) untrackJoin(name string, pj *pendingJoin) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pj.waiters--
	if pj.waiters == 0 {
		delete(h.joins, name)
	}
}

// bumpEpochLocked invalidates the lookups of joins in flight for name.
func (h *Hub) bumpEpochLocked(name string) {
	if pj, ok := h.joins[name]; ok {
		pj.epoch++
	}
}

// bind completes a join unless moderation touched the identity since the lookup.
func (h *Hub) bind(c *Client, ident *store.Identity, pj *pendingJoin, epoch uint64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return true, coreError(KindAuthenticationRequired, "connection closed")
	}
	if pj.epoch != epoch {
		return false, nil
	}
	if err := h.registry.Bind(c, ident.Name); err != nil {
		return true, coreError(KindAlreadyBound, "connection already joined")
	}
	h.presence.Upsert(c, PresenceEntry{
		IdentityName: ident.Name,
		Badges:       ident.Badges,
		Address:      c.Addr,
	})

	if !h.deliverLocked(c, &Event{Kind: EventSession, IdentityName: ident.Name, Badges: slices.Clone(ident.Badges)}) {
		return true, nil
	}
	h.deliverLocked(c, &Event{Kind: EventHistory, Messages: slices.Collect(h.history.Recent(ReplaySize))})
	h.markPresenceDirty()

	h.log.Info().Str("client_id", c.ID).Str("identity", ident.Name).Int("joined", h.registry.Len()).Msg("joined")
	return true, nil
}

// Send appends text as a message from c's identity and fans it out to every joined client.
func (h *Hub) Send(ctx context.Context, c *Client, text string) error {
	h.mu.Lock()
	name, ok := h.registry.IdentityOf(c)
	h.mu.Unlock()
	if !ok {
		return coreError(KindAuthenticationRequired, "join before sending")
	}

	ident, err := h.lookup(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		h.evict(name, EventAccountDeleted)
		return coreError(KindAuthenticationRequired, "identity no longer exists")
	}
	if err != nil {
		return storeError(err, KindAuthenticationRequired)
	}
	if ident.Banned {
		h.evict(name, EventBanned)
		return coreError(KindBanned, "identity is banned")
	}
	if ident.Muted {
		return coreError(KindMuted, "you are muted")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return coreError(KindValidation, "message is empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return coreError(KindValidation, "message is too long")
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return coreError(KindRateLimited, "too many messages, slow down")
	}

	sctx, cancel := h.storeCtx(ctx)
	_, err = h.store.IncrementMessageCount(sctx, name)
	cancel()
	if err != nil {
		return storeError(err, KindAuthenticationRequired)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Moderation may have dropped the connection while the store was busy.
	if bound, ok := h.registry.IdentityOf(c); !ok || bound != name {
		return coreError(KindAuthenticationRequired, "join before sending")
	}
	entry, _ := h.presence.Get(c)
	now := h.opts.Now()
	msg := Message{
		ID:        utils.NewMessageID(now),
		Author:    name,
		Text:      text,
		Time:      now.Format("15:04"),
		Badges:    slices.Clone(entry.Badges),
		CreatedAt: now,
	}
	h.history.Append(msg)
	h.broadcastLocked(h.registry.Clients(), &Event{Kind: EventMessage, Message: msg})
	return nil
}
