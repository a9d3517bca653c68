package core

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/lounge-server/internal/store"
)

func TestModerationMuteBlocksSend(t *testing.T) {
	hub, st := newTestHub(t, "alice", "bob")
	alice := joinClient(t, hub, "1", "alice")
	bob := joinClient(t, hub, "2", "bob")

	alice.Commands <- &Command{Kind: CommandModerate, Action: Action{Kind: ActionMute, Target: "bob"}}
	waitFor(t, func() bool {
		ident, err := st.GetIdentity(context.Background(), "bob")
		return err == nil && ident.Muted
	})

	bob.Commands <- &Command{Kind: CommandSend, Text: "still here?"}
	mustError(t, bob.Events, KindMuted)

	alice.Commands <- &Command{Kind: CommandModerate, Action: Action{Kind: ActionUnmute, Target: "bob"}}
	waitFor(t, func() bool {
		ident, err := st.GetIdentity(context.Background(), "bob")
		return err == nil && !ident.Muted
	})
	bob.Commands <- &Command{Kind: CommandSend, Text: "back"}
	if ev := mustEvent(t, alice.Events, EventMessage); ev.Message.Text != "back" {
		t.Fatalf("unexpected message %+v", ev.Message)
	}
}

func TestModerationBanEvictsAndBlocksRejoin(t *testing.T) {
	hub, _ := newTestHub(t, "alice", "bob")
	ctx := context.Background()
	alice := joinClient(t, hub, "1", "alice")
	bob := joinClient(t, hub, "2", "bob")

	if err := hub.Moderate(ctx, alice, Action{Kind: ActionBan, Target: "bob"}); err != nil {
		t.Fatalf("ban: %v", err)
	}

	mustEvent(t, bob.Events, EventBanned)
	closeEv := mustEvent(t, bob.Events, EventClose)
	if closeEv.Reason != "banned" {
		t.Fatalf("unexpected close reason %q", closeEv.Reason)
	}
	for _, e := range hub.Presence() {
		if e.IdentityName == "bob" {
			t.Fatalf("bob still present after ban")
		}
	}

	again := NewClient("3", "", 0)
	hub.RegisterClient(again)
	defer hub.UnregisterClient(again)
	if err := hub.Join(ctx, again, "bob", ""); !IsKind(err, KindBanned) {
		t.Fatalf("expected Banned on rejoin, got %v", err)
	}

	if err := hub.Moderate(ctx, alice, Action{Kind: ActionUnban, Target: "bob"}); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if err := hub.Join(ctx, again, "bob", ""); err != nil {
		t.Fatalf("expected join after unban, got %v", err)
	}
}

func TestModerationDeleteEvictsEveryConnection(t *testing.T) {
	hub, st := newTestHub(t, "alice", "bob")
	ctx := context.Background()
	alice := joinClient(t, hub, "1", "alice")
	bob1 := joinClient(t, hub, "2", "bob")
	bob2 := joinClient(t, hub, "3", "bob")

	if err := hub.Moderate(ctx, alice, Action{Kind: ActionDelete, Target: "bob"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, c := range []*Client{bob1, bob2} {
		mustEvent(t, c.Events, EventAccountDeleted)
		mustEvent(t, c.Events, EventClose)
	}
	if got := hub.Presence(); len(got) != 1 || got[0].IdentityName != "alice" {
		t.Fatalf("expected only alice present, got %+v", got)
	}
	if _, err := st.GetIdentity(ctx, "bob"); err == nil {
		t.Fatalf("expected bob to be gone from the store")
	}
	if err := hub.Send(ctx, bob1, "ghost"); !IsKind(err, KindAuthenticationRequired) {
		t.Fatalf("expected AuthenticationRequired after delete, got %v", err)
	}
}

func TestModerationGrantAndRevokeBadge(t *testing.T) {
	hub, _ := newTestHub(t, "alice", "bob")
	ctx := context.Background()
	alice := joinClient(t, hub, "1", "alice")
	bob := joinClient(t, hub, "2", "bob")

	if err := hub.Moderate(ctx, alice, Action{Kind: ActionGrant, Target: "bob", Badge: "vip"}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ev := mustEvent(t, bob.Events, EventBadgeUpdate)
	if !slices.Contains(ev.Badges, "vip") {
		t.Fatalf("expected vip in badge update, got %v", ev.Badges)
	}
	if !slices.Contains(presenceOf(t, hub, "bob").Badges, "vip") {
		t.Fatalf("expected presence to carry vip")
	}

	// New messages carry the refreshed badges.
	if err := hub.Send(ctx, bob, "shiny"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := mustEvent(t, alice.Events, EventMessage)
	if !slices.Contains(msg.Message.Badges, "vip") {
		t.Fatalf("expected vip on message, got %v", msg.Message.Badges)
	}

	if err := hub.Moderate(ctx, alice, Action{Kind: ActionRevoke, Target: "bob", Badge: "vip"}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ev = mustEvent(t, bob.Events, EventBadgeUpdate)
	if slices.Contains(ev.Badges, "vip") {
		t.Fatalf("expected vip removed, got %v", ev.Badges)
	}
}

func TestModerationRejections(t *testing.T) {
	hub, _ := newTestHub(t, "alice", "bob", "carol")
	ctx := context.Background()
	alice := joinClient(t, hub, "1", "alice")
	bob := joinClient(t, hub, "2", "bob")

	unbound := NewClient("9", "", 0)
	hub.RegisterClient(unbound)
	defer hub.UnregisterClient(unbound)

	cases := []struct {
		name   string
		caller *Client
		action Action
		kind   ErrorKind
	}{
		{"unbound caller", unbound, Action{Kind: ActionBan, Target: "bob"}, KindAuthenticationRequired},
		{"not owner", bob, Action{Kind: ActionMute, Target: "carol"}, KindNotAuthorized},
		{"unknown target", alice, Action{Kind: ActionBan, Target: "nobody"}, KindNotFound},
		{"owner target", alice, Action{Kind: ActionBan, Target: "alice"}, KindForbidden},
		{"grant owner badge", alice, Action{Kind: ActionGrant, Target: "bob", Badge: "owner"}, KindForbidden},
		{"revoke owner badge", alice, Action{Kind: ActionRevoke, Target: "bob", Badge: "Owner"}, KindForbidden},
		{"empty badge", alice, Action{Kind: ActionGrant, Target: "bob", Badge: " "}, KindValidation},
		{"unknown action", alice, Action{Kind: "kick", Target: "bob"}, KindValidation},
		{"empty target", alice, Action{Kind: ActionMute, Target: ""}, KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := hub.Moderate(ctx, tc.caller, tc.action)
			if !IsKind(err, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
		})
	}

	if !slices.Equal(presenceOf(t, hub, "alice").Badges, []string{"owner", "dev"}) {
		t.Fatalf("owner badges changed")
	}
}

// racingStore bans an identity right after its first lookup, as if an owner's
// ban landed between a join's lookup and its bind.
type racingStore struct {
	store.IdentityStore
	once  sync.Once
	onGet func()
}

func (s *racingStore) GetIdentity(ctx context.Context, name string) (*store.Identity, error) {
	ident, err := s.IdentityStore.GetIdentity(ctx, name)
	s.once.Do(s.onGet)
	return ident, err
}

func TestJoinRetriesAfterConcurrentBan(t *testing.T) {
	inner := seedStore(t, "alice", "bob")
	rs := &racingStore{IdentityStore: inner}
	hub := NewHub(rs, nil, Options{})
	rs.onGet = func() {
		if err := inner.SetBanned(context.Background(), "bob", true, "alice", time.Now()); err != nil {
			t.Errorf("ban: %v", err)
		}
		hub.evict("bob", EventBanned)
	}

	c := NewClient("1", "", 0)
	hub.RegisterClient(c)
	defer hub.UnregisterClient(c)

	if err := hub.Join(context.Background(), c, "bob", ""); !IsKind(err, KindBanned) {
		t.Fatalf("expected Banned after retry, got %v", err)
	}
	if n := len(hub.Presence()); n != 0 {
		t.Fatalf("expected no presence entries, got %d", n)
	}
	if n := pendingJoins(hub); n != 0 {
		t.Fatalf("expected join state to be released, %d names remain", n)
	}
}

func TestModerationLeavesNoJoinState(t *testing.T) {
	hub, _ := newTestHub(t, "alice", "bob", "carol")
	ctx := context.Background()
	alice := joinClient(t, hub, "1", "alice")

	for _, action := range []Action{
		{Kind: ActionMute, Target: "bob"},
		{Kind: ActionGrant, Target: "bob", Badge: "dev"},
		{Kind: ActionBan, Target: "bob"},
		{Kind: ActionDelete, Target: "carol"},
	} {
		if err := hub.Moderate(ctx, alice, action); err != nil {
			t.Fatalf("%s: %v", action.Kind, err)
		}
	}
	if n := pendingJoins(hub); n != 0 {
		t.Fatalf("expected no join state, got %d names", n)
	}
}

func pendingJoins(hub *Hub) int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.joins)
}

func presenceOf(t *testing.T, hub *Hub, name string) PresenceEntry {
	t.Helper()
	for _, e := range hub.Presence() {
		if e.IdentityName == name {
			return e
		}
	}
	t.Fatalf("no presence entry for %s", name)
	return PresenceEntry{}
}
