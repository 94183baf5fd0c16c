package history

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fun-with-ai/internal/storage"
)

func TestHistoryPrependNewestFirst(t *testing.T) {
	var h History
	for _, p := range []string{"one", "two", "three"} {
		h = h.Prepend(Interaction{Prompt: p, Response: "r-" + p, Engine: "text-ada-001"})
	}
	if len(h) != 3 {
		t.Fatalf("want 3, got %d", len(h))
	}
	if h[0].Prompt != "three" || h[2].Prompt != "one" {
		t.Fatalf("unexpected order: %+v", h)
	}

	// Ensure copy semantics (earlier snapshots do not change)
	snap := h
	_ = h.Prepend(Interaction{Prompt: "four"})
	if len(snap) != 3 || snap[0].Prompt != "three" {
		t.Fatalf("snapshot mutated: %+v", snap)
	}
	c := h.Clone()
	c[0].Prompt = "mutated"
	if h[0].Prompt != "three" {
		t.Fatalf("clone shares storage with original")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore(0), "responses")

	if _, ok, err := s.Load(ctx); err != nil || ok {
		t.Fatalf("empty store should be absent: ok=%v err=%v", ok, err)
	}

	want := History{
		{Prompt: "second", Response: "B", Engine: "text-curie-001"},
		{Prompt: "first", Response: "A\nwith \"quotes\"", Engine: "text-ada-001"},
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: want %+v got %+v", i, want[i], got[i])
		}
	}
}

func TestStoreSaveEmptyIsPresent(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore(0)
	s := NewStore(kv, "responses")
	if err := s.Save(ctx, nil); err != nil {
		t.Fatalf("save nil: %v", err)
	}
	raw, _, _ := kv.Get(ctx, "responses")
	if raw != "[]" {
		t.Fatalf("want [] stored, got %q", raw)
	}
	h, ok, err := s.Load(ctx)
	if err != nil || !ok || h == nil || len(h) != 0 {
		t.Fatalf("want present empty history, got %v ok=%v err=%v", h, ok, err)
	}
}

func TestStoreLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore(0)
	_ = kv.Set(ctx, "responses", "{not a list")
	_, ok, err := NewStore(kv, "responses").Load(ctx)
	if ok || !errors.Is(err, storage.ErrCorrupt) {
		t.Fatalf("want ErrCorrupt, got ok=%v err=%v", ok, err)
	}
}

func TestStoreSaveQuota(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryStore(64), "responses")
	big := History{{Prompt: strings.Repeat("p", 100), Response: "r", Engine: "e"}}
	if err := s.Save(ctx, big); !errors.Is(err, storage.ErrQuotaExceeded) {
		t.Fatalf("want quota error, got %v", err)
	}
}

func TestHistoryHasPrefix(t *testing.T) {
	a := Interaction{Prompt: "a"}
	b := Interaction{Prompt: "b"}
	h := History{a, b}
	if !h.HasPrefix(History{a}) || !h.HasPrefix(History{}) || !h.HasPrefix(h) {
		t.Fatalf("expected prefixes to match")
	}
	if h.HasPrefix(History{b}) || h.HasPrefix(History{a, b, a}) {
		t.Fatalf("unexpected prefix match")
	}
}
