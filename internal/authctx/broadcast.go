package authctx

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/quinticechen/alchemist-resume-sub001/internal/kv"
)

// EventKey is the shared storage key auth transitions are announced under.
const EventKey = "auth.broadcast"

type EventType string

const (
	SignedIn  EventType = "SIGNED_IN"
	SignedOut EventType = "SIGNED_OUT"
)

// Event is the envelope written to shared storage on an auth transition.
// It carries no session payload: receivers re-validate against the session
// source, so a duplicated or stale envelope can only delay convergence,
// never corrupt state. Seq orders events across writers even when two
// transitions land within the same millisecond.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Seq       int64     `json:"seq"`
}

type Broadcaster struct {
	store kv.Store
	now   func() time.Time
}

func NewBroadcaster(store kv.Store) *Broadcaster {
	return &Broadcaster{store: store, now: time.Now}
}

// Announce writes a timestamped event marker. Delivery is at-least-once at
// best: a suspended receiver misses it and stays stale until its own next
// session event. The sequence number continues from whatever event is
// already stored, so writers sharing the store produce one ordered stream.
func (b *Broadcaster) Announce(eventType EventType) {
	var prev Event
	if raw, ok := b.store.Get(EventKey); ok {
		_ = json.Unmarshal([]byte(raw), &prev)
	}
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: b.now().UnixMilli(),
		Seq:       prev.Seq + 1,
	})
	if err != nil {
		return
	}
	b.store.Set(EventKey, string(payload))
}

// Subscribe delivers events newer than the last one this subscription
// observed, ordered by sequence number.
func (b *Broadcaster) Subscribe(fn func(Event)) (cancel func()) {
	var mu sync.Mutex
	var lastSeen int64

	return b.store.Watch(EventKey, func(value string) {
		var event Event
		if err := json.Unmarshal([]byte(value), &event); err != nil {
			return
		}
		if event.Type != SignedIn && event.Type != SignedOut {
			return
		}
		mu.Lock()
		if event.Seq <= lastSeen {
			mu.Unlock()
			return
		}
		lastSeen = event.Seq
		mu.Unlock()
		fn(event)
	})
}
