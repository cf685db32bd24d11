package kv

import "testing"

func TestSetNotifiesWatchers(t *testing.T) {
	store := NewMemory()

	var seen []string
	cancel := store.Watch("auth", func(value string) {
		seen = append(seen, value)
	})

	store.Set("auth", "one")
	store.Set("other", "ignored")
	store.Set("auth", "two")

	if len(seen) != 2 || seen[0] != "one" || seen[1] != "two" {
		t.Fatalf("seen=%v, want [one two]", seen)
	}

	cancel()
	store.Set("auth", "three")
	if len(seen) != 2 {
		t.Fatalf("watcher fired after cancel: %v", seen)
	}

	if value, ok := store.Get("auth"); !ok || value != "three" {
		t.Fatalf("Get(auth)=(%q,%v), want (three,true)", value, ok)
	}
}

func TestWatcherMayWriteStore(t *testing.T) {
	store := NewMemory()

	cancel := store.Watch("a", func(value string) {
		if value == "ping" {
			store.Set("b", "pong")
		}
	})
	defer cancel()

	store.Set("a", "ping")
	if value, _ := store.Get("b"); value != "pong" {
		t.Fatalf("Get(b)=%q, want pong", value)
	}
}
