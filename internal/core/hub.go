package core

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/lounge-server/internal/store"
)

const defaultStoreTimeout = 5 * time.Second

// TokenVerifier resolves a session token to the identity name it was issued for.
type TokenVerifier interface {
	IdentityFromToken(token string) (string, error)
}

// Options tune a Hub. The zero value is usable.
type Options struct {
	// StoreTimeout bounds every identity store call made on behalf of a client.
	StoreTimeout time.Duration
	// Verifier, when set, makes join require a token issued for the joining identity.
	Verifier TokenVerifier
	// SendRatePerMinute throttles each joined connection's sends. Zero disables it.
	SendRatePerMinute int
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Hub coordinates joined connections, presence and chat history.
//
// A single mutex guards the registry, presence table and history. It is held
// while events are queued so every client observes appends in the same order,
// and it is never held across identity store calls.
type Hub struct {
	store store.IdentityStore
	log   zerolog.Logger
	opts  Options

	mu       sync.Mutex
	clients  map[*Client]struct{}
	registry *Registry
	presence *PresenceTable
	history  *History
	joins    map[string]*pendingJoin

	presenceDirty chan struct{}
}

// NewHub creates a new chat hub instance.
func NewHub(st store.IdentityStore, logger *zerolog.Logger, opts Options) *Hub {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "hub").Logger()
	}
	return &Hub{
		store:         st,
		log:           l,
		opts:          opts,
		clients:       make(map[*Client]struct{}),
		registry:      NewRegistry(),
		presence:      NewPresenceTable(),
		history:       NewHistory(HistoryCapacity),
		joins:         make(map[string]*pendingJoin),
		presenceDirty: make(chan struct{}, 1),
	}
}

// Run publishes presence updates until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-h.presenceDirty:
			h.broadcastPresence()
		}
	}
}

// RegisterClient starts serving c's commands.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	c.limiter = newRateLimiter(h.opts.SendRatePerMinute)
	h.clients[c] = struct{}{}
	h.markPresenceDirty()
	h.mu.Unlock()

	h.log.Debug().Str("client_id", c.ID).Str("addr", c.Addr).Msg("client registered")
	go h.serve(c)
}

// UnregisterClient tears c down. Calling it more than once is harmless.
func (h *Hub) UnregisterClient(c *Client) {
	c.close()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.detachLocked(c)
	h.log.Debug().Str("client_id", c.ID).Int("joined", h.registry.Len()).Msg("client unregistered")
}

// Presence returns the current presence list.
func (h *Hub) Presence() []PresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence.SnapshotAll()
}

// Recent returns up to n of the latest messages, oldest first.
func (h *Hub) Recent(n int) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Collect(h.history.Recent(n))
}

func (h *Hub) serve(c *Client) {
	for {
		select {
		case <-c.Done():
			return
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			if err := h.handle(c.ctx, c, cmd); err != nil {
				h.reject(c, err)
			}
		}
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) error {
	switch cmd.Kind {
	case CommandJoin:
		return h.Join(ctx, c, cmd.IdentityName, cmd.Token)
	case CommandSend:
		return h.Send(ctx, c, cmd.Text)
	case CommandModerate:
		return h.Moderate(ctx, c, cmd.Action)
	default:
		return coreError(KindValidation, "unknown command")
	}
}

func (h *Hub) reject(c *Client, err error) {
	ce := AsCoreError(err)
	if ce == nil {
		ce = &CoreError{Kind: KindUnavailable, Message: "internal error", Cause: err}
	}
	ev := h.log.Debug()
	if ce.Kind == KindUnavailable {
		ev = h.log.Warn()
	}
	ev.Err(ce.Cause).Str("client_id", c.ID).Str("kind", string(ce.Kind)).Msg(ce.Message)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.deliverLocked(c, &Event{Kind: EventError, Error: &CoreError{Kind: ce.Kind, Message: ce.Message}})
}

func (h *Hub) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, h.opts.StoreTimeout)
}

func (h *Hub) lookup(ctx context.Context, name string) (*store.Identity, error) {
	ctx, cancel := h.storeCtx(ctx)
	defer cancel()
	return h.store.GetIdentity(ctx, name)
}

// detachLocked unbinds c and drops its presence entry.
func (h *Hub) detachLocked(c *Client) {
	if err := h.registry.Unbind(c); err != nil {
		return
	}
	h.presence.Remove(c)
	h.markPresenceDirty()
}

// deliverLocked queues ev for c and drops c if its queue is full.
func (h *Hub) deliverLocked(c *Client, ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		h.dropLocked(c)
		return false
	}
}

// broadcastLocked queues ev for every client in targets.
func (h *Hub) broadcastLocked(targets []*Client, ev *Event) {
	var slow []*Client
	for _, c := range targets {
		select {
		case c.Events <- ev:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.dropLocked(c)
	}
}

func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.log.Warn().Str("client_id", c.ID).Msg("client too slow, dropping")
	delete(h.clients, c)
	h.detachLocked(c)
	c.close()
}

func (h *Hub) markPresenceDirty() {
	select {
	case h.presenceDirty <- struct{}{}:
	default:
	}
}

func (h *Hub) broadcastPresence() {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev := &Event{Kind: EventPresence, Presence: h.presence.SnapshotAll()}
	h.log.Debug().Int("online", h.presence.Len()).Int("clients", len(h.clients)).Msg("presence broadcast")
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.broadcastLocked(targets, ev)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
	}
}
