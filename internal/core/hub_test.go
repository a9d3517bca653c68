package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestHubJoinReplaysHistoryAndBroadcasts(t *testing.T) {
	hub, _ := newTestHub(t, "alice", "bob")

	alice := joinClient(t, hub, "1", "alice")
	hist := mustEvent(t, alice.Events, EventHistory)
	if len(hist.Messages) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(hist.Messages))
	}

	bob := joinClient(t, hub, "2", "bob")

	alice.Commands <- &Command{Kind: CommandSend, Text: "  hi  "}

	msgEv := mustEvent(t, bob.Events, EventMessage)
	if msgEv.Message.Author != "alice" || msgEv.Message.Text != "hi" {
		t.Fatalf("unexpected message event: %+v", msgEv.Message)
	}
	if msgEv.Message.ID == "" || len(msgEv.Message.Time) != 5 {
		t.Fatalf("expected id and HH:MM time, got %+v", msgEv.Message)
	}
	if len(msgEv.Message.Badges) != 2 || msgEv.Message.Badges[0] != "owner" {
		t.Fatalf("expected owner badges on message, got %v", msgEv.Message.Badges)
	}

	// The sender receives its own message too.
	mustEvent(t, alice.Events, EventMessage)

	carol := NewClient("3", "10.0.0.3", 0)
	hub.RegisterClient(carol)
	defer hub.UnregisterClient(carol)
	pres := mustEvent(t, carol.Events, EventPresence)
	if len(pres.Presence) != 2 {
		t.Fatalf("expected presence for alice and bob, got %+v", pres.Presence)
	}
}

func TestHubPresenceCarriesAddress(t *testing.T) {
	hub, _ := newTestHub(t, "alice")
	joinClient(t, hub, "1", "alice")

	entries := hub.Presence()
	if len(entries) != 1 {
		t.Fatalf("expected one presence entry, got %d", len(entries))
	}
	if entries[0].IdentityName != "alice" || entries[0].Address != "10.0.0.1" || entries[0].ClientID != "1" {
		t.Fatalf("unexpected presence entry: %+v", entries[0])
	}
}

func TestHubDoubleJoinProducesError(t *testing.T) {
	hub, _ := newTestHub(t, "alice", "bob")
	alice := joinClient(t, hub, "1", "alice")

	alice.Commands <- &Command{Kind: CommandJoin, IdentityName: "bob"}
	mustError(t, alice.Events, KindAlreadyBound)

	if got := hub.Presence(); len(got) != 1 || got[0].IdentityName != "alice" {
		t.Fatalf("expected alice to stay bound, got %+v", got)
	}
}

func TestHubJoinUnknownIdentity(t *testing.T) {
	hub, _ := newTestHub(t, "alice")

	c := NewClient("1", "", 0)
	hub.RegisterClient(c)
	defer hub.UnregisterClient(c)

	c.Commands <- &Command{Kind: CommandJoin, IdentityName: "mallory"}
	mustError(t, c.Events, KindAuthenticationRequired)
}

func TestHubSendWithoutJoinProducesError(t *testing.T) {
	hub, _ := newTestHub(t, "alice")

	c := NewClient("1", "", 0)
	hub.RegisterClient(c)
	defer hub.UnregisterClient(c)

	c.Commands <- &Command{Kind: CommandSend, Text: "hello"}
	mustError(t, c.Events, KindAuthenticationRequired)

	if n := len(hub.Recent(ReplaySize)); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
}

func TestHubSendValidation(t *testing.T) {
	hub, _ := newTestHub(t, "alice")
	ctx := context.Background()

	alice := NewClient("1", "", 0)
	hub.RegisterClient(alice)
	defer hub.UnregisterClient(alice)
	if err := hub.Join(ctx, alice, "alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	long := make([]rune, MaxMessageRunes+1)
	for i := range long {
		long[i] = 'я'
	}
	for _, text := range []string{"", "   \n\t", string(long)} {
		if err := hub.Send(ctx, alice, text); !IsKind(err, KindValidation) {
			t.Fatalf("expected validation error for %q, got %v", text, err)
		}
	}
	if err := hub.Send(ctx, alice, string(long[:MaxMessageRunes])); err != nil {
		t.Fatalf("expected %d runes to be accepted, got %v", MaxMessageRunes, err)
	}
}

func TestHubHistoryKeepsLatest(t *testing.T) {
	hub, st := newTestHub(t, "alice", "bob")
	ctx := context.Background()

	alice := NewClient("1", "", 256)
	hub.RegisterClient(alice)
	defer hub.UnregisterClient(alice)
	if err := hub.Join(ctx, alice, "alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	// Keep alice's queue moving so she is not dropped.
	go func() {
		for {
			select {
			case <-alice.Events:
			case <-alice.Done():
				return
			}
		}
	}()

	for i := 1; i <= 105; i++ {
		if err := hub.Send(ctx, alice, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	all := hub.Recent(HistoryCapacity)
	if len(all) != HistoryCapacity || all[0].Text != "m6" || all[len(all)-1].Text != "m105" {
		t.Fatalf("unexpected retained window: %d messages, first %q", len(all), all[0].Text)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("message ids out of order at %d", i)
		}
	}

	bob := joinClient(t, hub, "2", "bob")
	hist := mustEvent(t, bob.Events, EventHistory)
	if len(hist.Messages) != ReplaySize || hist.Messages[0].Text != "m56" || hist.Messages[ReplaySize-1].Text != "m105" {
		t.Fatalf("unexpected replay: %d messages", len(hist.Messages))
	}

	ident, err := st.GetIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if ident.MessageCount != 105 {
		t.Fatalf("expected message count 105, got %d", ident.MessageCount)
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub, _ := newTestHub(t, "alice", "bob")
	ctx := context.Background()

	alice := joinClient(t, hub, "1", "alice")

	slow := NewClient("2", "", 2)
	hub.RegisterClient(slow)
	defer hub.UnregisterClient(slow)
	slow.Commands <- &Command{Kind: CommandJoin, IdentityName: "bob"}

	for i := 0; i < 5; i++ {
		_ = hub.Send(ctx, alice, "flood")
	}
	mustClosed(t, slow)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.Presence()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected slow client to leave presence, got %+v", hub.Presence())
}

func TestHubDisconnectRemovesPresence(t *testing.T) {
	hub, _ := newTestHub(t, "alice", "bob")

	alice := joinClient(t, hub, "1", "alice")
	bob := joinClient(t, hub, "2", "bob")

	hub.UnregisterClient(bob)
	hub.UnregisterClient(bob)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev := mustEvent(t, alice.Events, EventPresence)
		if len(ev.Presence) == 1 && ev.Presence[0].IdentityName == "alice" {
			return
		}
	}
	t.Fatalf("expected presence without bob")
}

type stubVerifier map[string]string

func (v stubVerifier) IdentityFromToken(token string) (string, error) {
	name, ok := v[token]
	if !ok {
		return "", errors.New("invalid token")
	}
	return name, nil
}

func TestHubJoinRequiresMatchingToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(seedStore(t, "alice", "bob"), nil, Options{Verifier: stubVerifier{"tok-alice": "alice"}})
	go hub.Run(ctx)

	c := NewClient("1", "", 0)
	hub.RegisterClient(c)
	defer hub.UnregisterClient(c)

	if err := hub.Join(ctx, c, "alice", ""); !IsKind(err, KindAuthenticationRequired) {
		t.Fatalf("expected AuthenticationRequired without token, got %v", err)
	}
	if err := hub.Join(ctx, c, "bob", "tok-alice"); !IsKind(err, KindAuthenticationRequired) {
		t.Fatalf("expected AuthenticationRequired for mismatched token, got %v", err)
	}
	if err := hub.Join(ctx, c, "alice", "tok-alice"); err != nil {
		t.Fatalf("expected join to succeed, got %v", err)
	}
}

func TestHubConcurrentSendersShareOneOrder(t *testing.T) {
	const perSender = 50
	hub, _ := newTestHub(t, "alice", "bob", "carol")
	ctx := context.Background()

	clients := []*Client{
		joinClient(t, hub, "1", "alice"),
		joinClient(t, hub, "2", "bob"),
		joinClient(t, hub, "3", "carol"),
	}

	var g errgroup.Group
	for _, c := range clients {
		g.Go(func() error {
			for i := range perSender {
				if err := hub.Send(ctx, c, fmt.Sprintf("%s-%d", c.ID, i)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("send: %v", err)
	}

	total := perSender * len(clients)
	var orders [][]string
	for _, c := range clients {
		orders = append(orders, collectMessageIDs(t, c.Events, total))
	}
	for i := 1; i < len(orders); i++ {
		if !slices.Equal(orders[0], orders[i]) {
			t.Fatalf("client %s saw a different order than client %s", clients[i].ID, clients[0].ID)
		}
	}

	var recent []string
	for _, m := range hub.Recent(HistoryCapacity) {
		recent = append(recent, m.ID)
	}
	if !slices.Equal(recent, orders[0][total-HistoryCapacity:]) {
		t.Fatalf("history order differs from delivery order")
	}
}

func TestHubSendAfterIdentityDeletedEvictsSessions(t *testing.T) {
	hub, st := newTestHub(t, "alice", "bob")
	ctx := context.Background()

	first := joinClient(t, hub, "1", "bob")
	second := joinClient(t, hub, "2", "bob")

	if err := st.DeleteIdentity(ctx, "bob", "alice", time.Now()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := hub.Send(ctx, first, "anyone?"); !IsKind(err, KindAuthenticationRequired) {
		t.Fatalf("expected AuthenticationRequired, got %v", err)
	}
	for _, c := range []*Client{first, second} {
		mustEvent(t, c.Events, EventAccountDeleted)
		if ev := mustEvent(t, c.Events, EventClose); ev.Reason != "account deleted" {
			t.Fatalf("unexpected close reason %q", ev.Reason)
		}
	}
	if n := len(hub.Presence()); n != 0 {
		t.Fatalf("expected empty presence, got %d entries", n)
	}
	if err := hub.Send(ctx, second, "still?"); !IsKind(err, KindAuthenticationRequired) {
		t.Fatalf("expected second connection to be unbound, got %v", err)
	}
	if n := len(hub.Recent(ReplaySize)); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
}

func TestHubRateLimitAppliesAfterSessionChecks(t *testing.T) {
	st := seedStore(t, "alice", "bob")
	ctx := context.Background()
	hub := NewHub(st, nil, Options{SendRatePerMinute: 1})

	stranger := NewClient("1", "", 0)
	hub.RegisterClient(stranger)
	defer hub.UnregisterClient(stranger)
	for range 3 {
		if err := hub.Send(ctx, stranger, "hi"); !IsKind(err, KindAuthenticationRequired) {
			t.Fatalf("expected AuthenticationRequired, got %v", err)
		}
	}

	alice := NewClient("2", "", 0)
	hub.RegisterClient(alice)
	defer hub.UnregisterClient(alice)
	if err := hub.Join(ctx, alice, "alice", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := hub.Send(ctx, alice, "   "); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := hub.Send(ctx, alice, "one"); err != nil {
		t.Fatalf("expected first send to pass, got %v", err)
	}
	if err := hub.Send(ctx, alice, "two"); !IsKind(err, KindRateLimited) {
		t.Fatalf("expected RateLimited, got %v", err)
	}

	if err := st.SetMuted(ctx, "bob", true, "alice", time.Now()); err != nil {
		t.Fatalf("mute: %v", err)
	}
	bob := NewClient("3", "", 0)
	hub.RegisterClient(bob)
	defer hub.UnregisterClient(bob)
	if err := hub.Join(ctx, bob, "bob", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	for range 3 {
		if err := hub.Send(ctx, bob, "hi"); !IsKind(err, KindMuted) {
			t.Fatalf("expected Muted, got %v", err)
		}
	}
}

// collectMessageIDs reads message events from ch until n arrive, skipping other kinds.
func collectMessageIDs(t *testing.T, ch <-chan *Event, n int) []string {
	t.Helper()

	ids := make([]string, 0, n)
	deadline := time.After(5 * time.Second)
	for len(ids) < n {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == EventMessage {
				ids = append(ids, ev.Message.ID)
			}
		case <-deadline:
			t.Fatalf("received %d of %d messages", len(ids), n)
		}
	}
	return ids
}
