package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vovakirdan/lounge-server/internal/store"
	"github.com/vovakirdan/lounge-server/internal/store/memory"
)

func benchmarkBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := memory.New()
	for i := range recipients + 1 {
		name := fmt.Sprintf("user%d", i)
		if _, err := st.CreateIdentity(ctx, store.NewIdentity{Name: name, Email: name + "@example.com", CreatedAt: time.Now()}); err != nil {
			b.Fatalf("seed: %v", err)
		}
	}

	hub := NewHub(st, nil, Options{})
	go hub.Run(ctx)

	sender := NewClient("sender", "", 0)
	hub.RegisterClient(sender)
	if err := hub.Join(ctx, sender, "user0", ""); err != nil {
		b.Fatalf("join: %v", err)
	}

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient(fmt.Sprintf("c%d", i), "", 0)
		hub.RegisterClient(c)
		if err := hub.Join(ctx, c, fmt.Sprintf("user%d", i+1), ""); err != nil {
			b.Fatalf("join: %v", err)
		}
		clients = append(clients, c)
	}

	// Drain events for everyone but the first recipient to avoid drops.
	target := clients[0]
	for _, c := range append(clients[1:], sender) {
		go func(cl *Client) {
			for {
				select {
				case <-cl.Events:
				case <-cl.Done():
					return
				}
			}
		}(c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := hub.Send(ctx, sender, "payload"); err != nil {
			b.Fatalf("send: %v", err)
		}
		for ev := range target.Events {
			if ev.Kind == EventMessage {
				break
			}
		}
	}
}

func BenchmarkBroadcast_10(b *testing.B)  { benchmarkBroadcast(b, 10) }
func BenchmarkBroadcast_100(b *testing.B) { benchmarkBroadcast(b, 100) }
func BenchmarkBroadcast_500(b *testing.B) { benchmarkBroadcast(b, 500) }
