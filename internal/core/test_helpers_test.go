package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/lounge-server/internal/store"
	"github.com/vovakirdan/lounge-server/internal/store/memory"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustError(t *testing.T, ch <-chan *Event, kind ErrorKind) {
	t.Helper()

	ev := mustEvent(t, ch, EventError)
	if ev.Error == nil || ev.Error.Kind != kind {
		t.Fatalf("expected %s error, got %+v", kind, ev.Error)
	}
}

func mustClosed(t *testing.T, c *Client) {
	t.Helper()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected client %s to be closed", c.ID)
	}
}

// seedStore returns a memory store holding the given names. The first becomes the owner.
func seedStore(t *testing.T, names ...string) *memory.MemoryStore {
	t.Helper()

	st := memory.New()
	for _, name := range names {
		_, err := st.CreateIdentity(context.Background(), store.NewIdentity{
			Name:         name,
			Email:        name + "@example.com",
			PasswordHash: "hash",
			CreatedAt:    time.Now(),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return st
}

// newTestHub starts a hub over a seeded memory store.
func newTestHub(t *testing.T, names ...string) (*Hub, *memory.MemoryStore) {
	t.Helper()

	st := seedStore(t, names...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(st, nil, Options{})
	go hub.Run(ctx)
	return hub, st
}

// joinClient registers a client and joins it as name, waiting for the session event.
func joinClient(t *testing.T, hub *Hub, id, name string) *Client {
	t.Helper()

	c := NewClient(id, "10.0.0."+id, 256)
	hub.RegisterClient(c)
	t.Cleanup(func() { hub.UnregisterClient(c) })

	c.Commands <- &Command{Kind: CommandJoin, IdentityName: name}
	mustEvent(t, c.Events, EventSession)
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
