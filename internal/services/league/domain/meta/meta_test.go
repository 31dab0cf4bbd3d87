package meta

import (
	"testing"
)

func TestSetAndGet(t *testing.T) {
	store := NewStore()

	store.Set("team", "t1", "morale", 0.8)

	value, ok := store.Get("team", "t1", "morale")
	if !ok || value != 0.8 {
		t.Fatalf("expected 0.8, got %v (ok=%v)", value, ok)
	}
	if _, ok := store.Get("team", "t1", "missing"); ok {
		t.Fatal("expected missing field to report not found")
	}
	if _, ok := store.Get("team", "t2", "morale"); ok {
		t.Fatal("expected unknown entity to report not found")
	}
}

func TestIncrementAndDecrement(t *testing.T) {
	store := NewStore()

	got, err := store.Increment("player", "p1", "hot_streak", 2)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}

	got, err = store.Decrement("player", "p1", "hot_streak", 3)
	if err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if got != -1 {
		t.Fatalf("expected -1, got %v", got)
	}

	store.Set("player", "p1", "nickname", "ice")
	if _, err := store.Increment("player", "p1", "nickname", 1); err == nil {
		t.Fatal("expected error incrementing a non-numeric field")
	}
}

func TestToggle(t *testing.T) {
	store := NewStore()

	on, err := store.Toggle("game", "g1", "rivalry_week")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !on {
		t.Fatal("expected first toggle to turn the flag on")
	}

	off, err := store.Toggle("game", "g1", "rivalry_week")
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if off {
		t.Fatal("expected second toggle to turn the flag off")
	}

	store.Set("game", "g1", "attendance", 18000)
	if _, err := store.Toggle("game", "g1", "attendance"); err == nil {
		t.Fatal("expected error toggling a non-bool field")
	}
}

func TestDirtyTrackingAndFlush(t *testing.T) {
	store := NewStore()

	store.LoadEntity("team", "t1", map[string]any{"morale": 0.5})
	if dirty := store.Dirty(); len(dirty) != 0 {
		t.Fatalf("LoadEntity must not dirty the entity, got %v", dirty)
	}

	store.Set("team", "t2", "morale", 0.9)
	store.Set("team", "t1", "momentum", 1)

	dirty := store.Dirty()
	if len(dirty) != 2 {
		t.Fatalf("expected 2 dirty entities, got %v", dirty)
	}
	if dirty[0] != (EntityKey{"team", "t1"}) || dirty[1] != (EntityKey{"team", "t2"}) {
		t.Fatalf("expected stable ordering, got %v", dirty)
	}

	flushed := store.Flush()
	if len(flushed) != 2 {
		t.Fatalf("expected flush to return 2 entities, got %v", flushed)
	}
	if dirty := store.Dirty(); len(dirty) != 0 {
		t.Fatalf("expected empty dirty set after flush, got %v", dirty)
	}

	// Seeded values survive the flush.
	if value, ok := store.Get("team", "t1", "morale"); !ok || value != 0.5 {
		t.Fatalf("expected seeded morale 0.5, got %v", value)
	}
}

func TestEntityReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Set("team", "t1", "morale", 0.5)

	snapshot := store.Entity("team", "t1")
	snapshot["morale"] = 0.0

	if value, _ := store.Get("team", "t1", "morale"); value != 0.5 {
		t.Fatalf("mutating the snapshot must not touch the store, got %v", value)
	}
}
