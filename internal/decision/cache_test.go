package decision

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute, 0)
	ctx := context.Background()

	d := &Decision{DecisionID: "dec_1", Allowed: true, AgentID: "agt_1"}
	store.Put(ctx, "k1", d)

	got, ok := store.Get(ctx, "k1")
	if !ok || got.DecisionID != "dec_1" {
		t.Fatalf("Get = (%+v, %v), want stored decision", got, ok)
	}
	if _, ok := store.Get(ctx, "absent"); ok {
		t.Error("Get returned a decision for an absent key")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute, 0)
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	store.Put(ctx, "k1", &Decision{DecisionID: "dec_1", Allowed: true})

	now = now.Add(59 * time.Second)
	if _, ok := store.Get(ctx, "k1"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok := store.Get(ctx, "k1"); ok {
		t.Fatal("entry survived past its TTL")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after lazy eviction, want 0", store.Len())
	}
}

func TestMemoryStoreBound(t *testing.T) {
	store := NewMemoryStore(time.Minute, 3)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		store.Put(ctx, k, &Decision{DecisionID: k, Allowed: true})
	}
	if store.Len() > 3 {
		t.Errorf("Len() = %d, want at most 3", store.Len())
	}
}

func TestMemoryStoreLastWriterWins(t *testing.T) {
	store := NewMemoryStore(time.Minute, 0)
	ctx := context.Background()

	store.Put(ctx, "k1", &Decision{DecisionID: "first", Allowed: true})
	store.Put(ctx, "k1", &Decision{DecisionID: "second", Allowed: true})

	got, ok := store.Get(ctx, "k1")
	if !ok || got.DecisionID != "second" {
		t.Errorf("Get = (%+v, %v), want the later write", got, ok)
	}
}
