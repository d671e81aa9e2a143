package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"inkwell/client/internal/collab"
	"inkwell/client/internal/localstore"
	"inkwell/client/internal/reconcile"
	"inkwell/client/internal/registry"
)

func setup(t *testing.T) (*Controller, *Signal, *localstore.Store, *registry.Registry, *collab.MemoryProvider) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := localstore.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("localstore.New failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	provider := collab.NewMemoryProvider()
	reg := registry.New(func(_ string, instance any) {
		if doc, ok := instance.(*collab.Doc); ok {
			provider.Dispose(doc)
		}
	}, 0, zerolog.Nop())

	signal := NewSignal()
	c := NewController(reg, store, signal, zerolog.Nop())
	t.Cleanup(c.Close)
	return c, signal, store, reg, provider
}

func TestSessionIsolation(t *testing.T) {
	c, signal, store, reg, provider := setup(t)
	ctx := context.Background()

	if err := c.Login(ctx, "user-a"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// User A's cached directory plus one live document handle.
	err := store.Put(ctx, localstore.TableDocuments, "doc-1", reconcile.Record{
		LocalID:   "doc-1",
		Name:      "A's notes",
		CreatedBy: "user-a",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_, err = reg.Acquire(ctx, "doc-1", func(ctx context.Context) (any, error) {
		return provider.Open(ctx, "doc-1")
	})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	signal.EmitLogout()

	if state, user := c.State(); state != StateUnauthenticated || user != "" {
		t.Fatalf("state after logout = %s/%q", state, user)
	}
	if reg.Len() != 0 {
		t.Error("registry not emptied on logout")
	}
	if provider.LiveCount() != 0 {
		t.Error("live document instance survived logout")
	}
	docs, err := localstore.ListInto[reconcile.Record](ctx, store, localstore.TableDocuments)
	if err != nil {
		t.Fatalf("ListInto failed: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("documents table not empty after logout: %+v", docs)
	}

	// User B's session sees only their own records.
	if err := c.Login(ctx, "user-b"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	err = store.Put(ctx, localstore.TableDocuments, "doc-3", reconcile.Record{
		LocalID:   "doc-3",
		Name:      "B's notes",
		CreatedBy: "user-b",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	docs, err = localstore.ListInto[reconcile.Record](ctx, store, localstore.TableDocuments)
	if err != nil {
		t.Fatalf("ListInto failed: %v", err)
	}
	if len(docs) != 1 || docs[0].CreatedBy != "user-b" {
		t.Fatalf("docs = %+v, want only user-b's record", docs)
	}
	for _, d := range docs {
		if d.CreatedBy == "user-a" {
			t.Fatal("user-a record leaked into user-b session")
		}
	}
}

func TestLoginOverExistingSessionPurges(t *testing.T) {
	c, _, store, _, _ := setup(t)
	ctx := context.Background()

	if err := c.Login(ctx, "user-a"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := store.Put(ctx, localstore.TableSettings, "theme", "dark"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := c.Login(ctx, "user-b"); err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	var theme string
	if err := store.Get(ctx, localstore.TableSettings, "theme", &theme); err != localstore.ErrNotFound {
		t.Errorf("settings survived user switch: %v %q", err, theme)
	}
	if c.CurrentUser() != "user-b" {
		t.Errorf("CurrentUser = %q", c.CurrentUser())
	}
}

func TestLogoutIdempotent(t *testing.T) {
	c, signal, _, _, _ := setup(t)
	signal.EmitLogout()
	signal.EmitLogout()
	if state, _ := c.State(); state != StateUnauthenticated {
		t.Fatalf("state = %s", state)
	}
}

func TestSubscriptionSingleAndRemovable(t *testing.T) {
	signal := NewSignal()
	calls := 0
	unsubscribe := signal.SubscribeLogout(func() { calls++ })

	signal.EmitLogout()
	if calls != 1 {
		t.Fatalf("calls = %d, want exactly 1 per emit", calls)
	}

	unsubscribe()
	unsubscribe() // safe to call twice
	signal.EmitLogout()
	if calls != 1 {
		t.Fatalf("calls after unsubscribe = %d", calls)
	}
}

func TestUserIDFromToken(t *testing.T) {
	secret := "test-secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	sub, err := UserIDFromToken(signed, secret)
	if err != nil {
		t.Fatalf("UserIDFromToken failed: %v", err)
	}
	if sub != "user-42" {
		t.Errorf("sub = %q", sub)
	}

	if _, err := UserIDFromToken(signed, "wrong-secret"); err == nil {
		t.Error("expected error for wrong secret")
	}
	if _, err := UserIDFromToken("not-a-token", secret); err == nil {
		t.Error("expected error for malformed token")
	}
}
