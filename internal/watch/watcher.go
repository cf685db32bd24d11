package watch

import (
	"encoding/json"
	"sync"
)

// Changefeed delivers insert/update notifications for a single record.
type Changefeed interface {
	Subscribe(table, recordID string, fn func(payload map[string]json.RawMessage)) (cancel func())
}

// Watcher waits for a watched record to gain a non-empty result field and
// signals ready exactly once. There is no polling fallback: a dropped
// notification means the watcher never fires.
type Watcher struct {
	mu     sync.Mutex
	done   bool
	cancel func()
}

// Watch subscribes feed to the record and invokes onReady with the first
// non-empty value of field. Dispose tears the subscription down whether or
// not ready was ever reached.
func Watch(feed Changefeed, table, recordID, field string, onReady func(value json.RawMessage)) *Watcher {
	w := &Watcher{}
	w.cancel = feed.Subscribe(table, recordID, func(payload map[string]json.RawMessage) {
		value, ok := payload[field]
		if !ok || isEmpty(value) {
			return
		}
		w.mu.Lock()
		if w.done {
			// A late event racing the teardown, or a second update.
			w.mu.Unlock()
			return
		}
		w.done = true
		w.mu.Unlock()
		onReady(value)
	})
	return w
}

// Dispose unsubscribes unconditionally. Safe to call more than once.
func (w *Watcher) Dispose() {
	w.mu.Lock()
	w.done = true
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func isEmpty(value json.RawMessage) bool {
	switch string(value) {
	case "", "null", `""`:
		return true
	}
	return false
}
