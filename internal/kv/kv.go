package kv

import "sync"

// Store is shared keyed storage with change notification: the server-side
// analogue of browser shared storage plus its storage-change events. Writes
// are whole-key overwrites, last-write-wins.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Watch(key string, fn func(value string)) (cancel func())
}

// Memory is an in-process Store. Watchers are notified synchronously on
// every Set of the watched key, writer included; readers are expected to
// re-validate against their source of truth rather than trust the value.
type Memory struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[string]map[int]func(string)
	nextID   int
}

func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string]string),
		watchers: make(map[string]map[int]func(string)),
	}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	m.values[key] = value
	var fns []func(string)
	for _, fn := range m.watchers[key] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	// Callbacks run outside the lock so a watcher may read or write the
	// store without deadlocking.
	for _, fn := range fns {
		fn(value)
	}
}

func (m *Memory) Watch(key string, fn func(value string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[int]func(string))
	}
	m.watchers[key][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers[key], id)
	}
}
