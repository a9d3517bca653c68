package core

import (
	"context"
	"slices"
	"strings"
)

// ActionKind names a moderation action.
type ActionKind string

const (
	ActionBan    ActionKind = "ban"
	ActionUnban  ActionKind = "unban"
	ActionMute   ActionKind = "mute"
	ActionUnmute ActionKind = "unmute"
	ActionDelete ActionKind = "delete"
	ActionGrant  ActionKind = "grant"
	ActionRevoke ActionKind = "revoke"
)

// Valid reports whether k is a known action.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionBan, ActionUnban, ActionMute, ActionUnmute, ActionDelete, ActionGrant, ActionRevoke:
		return true
	}
	return false
}

// Action is an owner-issued moderation request.
type Action struct {
	Kind   ActionKind
	Target string
	Badge  string // ActionGrant, ActionRevoke
}

// Moderate applies a to its target on behalf of the identity bound to c.
func (h *Hub) Moderate(ctx context.Context, c *Client, a Action) error {
	h.mu.Lock()
	caller, ok := h.registry.IdentityOf(c)
	h.mu.Unlock()
	if !ok {
		return coreError(KindAuthenticationRequired, "join before moderating")
	}
	if !a.Kind.Valid() {
		return coreError(KindValidation, "unknown moderation action")
	}

	// Ownership is read from the store, not from the badges cached at join.
	callerIdent, err := h.lookup(ctx, caller)
	if err != nil {
		return storeError(err, KindAuthenticationRequired)
	}
	if !callerIdent.IsOwner() {
		return coreError(KindNotAuthorized, "only the owner can moderate")
	}

	target := strings.TrimSpace(a.Target)
	if target == "" {
		return coreError(KindValidation, "target is required")
	}
	targetIdent, err := h.lookup(ctx, target)
	if err != nil {
		return storeError(err, KindNotFound)
	}
	if targetIdent.IsOwner() {
		return coreError(KindForbidden, "the owner cannot be moderated")
	}

	sctx, cancel := h.storeCtx(ctx)
	defer cancel()
	now := h.opts.Now()

	var badges []string
	switch a.Kind {
	case ActionBan:
		err = h.store.SetBanned(sctx, target, true, caller, now)
	case ActionUnban:
		err = h.store.SetBanned(sctx, target, false, caller, now)
	case ActionMute:
		err = h.store.SetMuted(sctx, target, true, caller, now)
	case ActionUnmute:
		err = h.store.SetMuted(sctx, target, false, caller, now)
	case ActionDelete:
		err = h.store.DeleteIdentity(sctx, target, caller, now)
	case ActionGrant:
		badges, err = h.store.AddBadge(sctx, target, a.Badge)
	case ActionRevoke:
		badges, err = h.store.RemoveBadge(sctx, target, a.Badge)
	}
	if err != nil {
		return storeError(err, KindNotFound)
	}

	h.log.Info().
		Str("by", caller).
		Str("target", target).
		Str("action", string(a.Kind)).
		Str("badge", a.Badge).
		Msg("moderation applied")

	switch a.Kind {
	case ActionBan:
		h.evict(target, EventBanned)
	case ActionDelete:
		h.evict(target, EventAccountDeleted)
	case ActionGrant, ActionRevoke:
		h.refreshBadges(target, badges)
	default:
		h.bumpEpoch(target)
	}
	return nil
}

// evict notifies every connection of name with kind, then unbinds and closes them.
func (h *Hub) evict(name string, kind EventKind) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.bumpEpochLocked(name)
	conns := h.registry.ConnectionsOf(name)
	h.broadcastLocked(conns, &Event{Kind: kind})
	for _, c := range conns {
		if _, ok := h.clients[c]; !ok {
			continue
		}
		h.detachLocked(c)
		h.deliverLocked(c, &Event{Kind: EventClose, Reason: kind.closeReason()})
	}
	h.markPresenceDirty()
}

// refreshBadges pushes a new badge set to name's connections and presence entries.
func (h *Hub) refreshBadges(name string, badges []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.bumpEpochLocked(name)
	h.presence.RefreshBadges(name, badges)
	h.broadcastLocked(h.registry.ConnectionsOf(name), &Event{Kind: EventBadgeUpdate, Badges: slices.Clone(badges)})
	h.markPresenceDirty()
}

func (h *Hub) bumpEpoch(name string) {
	h.mu.Lock()
	h.bumpEpochLocked(name)
	h.mu.Unlock()
}

func (k EventKind) closeReason() string {
	switch k {
	case EventBanned:
		return "banned"
	case EventAccountDeleted:
		return "account deleted"
	default:
		return "closed"
	}
}
