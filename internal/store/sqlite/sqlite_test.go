package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/lounge-server/internal/store"
	"github.com/vovakirdan/lounge-server/internal/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.IdentityStore {
		s, err := NewWithSetup(":memory:", ApplySchema)
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		return s
	})
}

func TestDeletePurgesCartsAndReviews(t *testing.T) {
	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		if err := ApplySchema(db); err != nil {
			return err
		}
		_, err := db.Exec(`
			INSERT INTO carts (name, item, quantity) VALUES ('bob', 'mug', 2), ('carol', 'hat', 1);
			INSERT INTO reviews (author, rating, body) VALUES ('bob', 5, 'great'), ('carol', 4, 'fine');
		`)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, name := range []string{"alice", "bob"} {
		if _, err := s.CreateIdentity(ctx, store.NewIdentity{
			Name:         name,
			Email:        name + "@example.com",
			PasswordHash: "hash",
			CreatedAt:    time.Now(),
		}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	if err := s.DeleteIdentity(ctx, "bob", "alice", time.Now()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var carts, reviews int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM carts`).Scan(&carts); err != nil {
		t.Fatalf("count carts: %v", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reviews`).Scan(&reviews); err != nil {
		t.Fatalf("count reviews: %v", err)
	}
	if carts != 1 || reviews != 1 {
		t.Fatalf("expected only carol's rows to remain, got carts=%d reviews=%d", carts, reviews)
	}
}

func TestOwnerClaimSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lounge.db")
	ctx := context.Background()

	first, err := New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	alice, err := first.CreateIdentity(ctx, store.NewIdentity{Name: "alice", Email: "a@example.com", PasswordHash: "h", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if !alice.IsOwner() {
		t.Fatalf("expected alice to be owner, got %v", alice.Badges)
	}
	_ = first.Close()

	second, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	bob, err := second.CreateIdentity(ctx, store.NewIdentity{Name: "bob", Email: "b@example.com", PasswordHash: "h", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if bob.IsOwner() {
		t.Fatalf("expected bob not to be owner after reopen, got %v", bob.Badges)
	}
}
