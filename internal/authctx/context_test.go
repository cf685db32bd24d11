package authctx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quinticechen/alchemist-resume-sub001/internal/kv"
)

// sessionHolder plays the provider's shared credential store: every source
// attached to it reads the same ground truth.
type sessionHolder struct {
	mu      sync.Mutex
	session *Session
}

func (h *sessionHolder) get() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

func (h *sessionHolder) set(session *Session) {
	h.mu.Lock()
	h.session = session
	h.mu.Unlock()
}

type fakeSource struct {
	holder     *sessionHolder
	signOutErr error

	mu        sync.Mutex
	queries   int
	listeners []func(*Session)
}

func newFakeSource(holder *sessionHolder) *fakeSource {
	return &fakeSource{holder: holder}
}

func (f *fakeSource) CurrentSession(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	f.queries++
	f.mu.Unlock()
	return f.holder.get(), nil
}

func (f *fakeSource) OnSessionChange(fn func(*Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {}
}

func (f *fakeSource) SignOut(ctx context.Context) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.holder.set(nil)
	f.fire(nil)
	return nil
}

// fire delivers a session-change event to this source's own listeners only,
// the way a provider SDK notifies the tab that performed the action.
func (f *fakeSource) fire(session *Session) {
	f.mu.Lock()
	listeners := append([]func(*Session){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(session)
	}
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func TestInitialResolution(t *testing.T) {
	store := kv.NewMemory()
	holder := &sessionHolder{}

	anon, err := New(context.Background(), newFakeSource(holder), NewBroadcaster(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer anon.Close()
	if anon.State() != Anonymous {
		t.Fatalf("state=%v, want anonymous", anon.State())
	}

	holder.set(&Session{Token: "tok", UserID: "u1", Email: "u1@example.com"})
	authed, err := New(context.Background(), newFakeSource(holder), NewBroadcaster(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer authed.Close()
	if authed.State() != Authenticated {
		t.Fatalf("state=%v, want authenticated", authed.State())
	}
	if authed.Session() == nil || authed.Session().UserID != "u1" {
		t.Fatalf("session=%+v", authed.Session())
	}
}

func TestCrossTabSignInRequeriesSource(t *testing.T) {
	store := kv.NewMemory()
	holder := &sessionHolder{}
	sourceA := newFakeSource(holder)
	sourceB := newFakeSource(holder)

	ctxA, err := New(context.Background(), sourceA, NewBroadcaster(store))
	if err != nil {
		t.Fatalf("New A: %v", err)
	}
	defer ctxA.Close()
	ctxB, err := New(context.Background(), sourceB, NewBroadcaster(store))
	if err != nil {
		t.Fatalf("New B: %v", err)
	}
	defer ctxB.Close()

	queriesBefore := sourceB.queryCount()

	// Tab A signs in. Its source event drives the local transition and the
	// broadcast; tab B sees only the broadcast.
	session := &Session{Token: "tok", UserID: "u1", Email: "u1@example.com"}
	holder.set(session)
	sourceA.fire(session)

	if ctxA.State() != Authenticated {
		t.Fatalf("tab A state=%v, want authenticated", ctxA.State())
	}
	if ctxB.State() != Authenticated {
		t.Fatalf("tab B state=%v, want authenticated", ctxB.State())
	}
	if sourceB.queryCount() <= queriesBefore {
		t.Fatal("tab B trusted the broadcast payload instead of re-querying its source")
	}
}

func TestCrossTabSignOut(t *testing.T) {
	store := kv.NewMemory()
	holder := &sessionHolder{}
	holder.set(&Session{Token: "tok", UserID: "u1"})
	sourceA := newFakeSource(holder)
	sourceB := newFakeSource(holder)

	ctxA, err := New(context.Background(), sourceA, NewBroadcaster(store))
	if err != nil {
		t.Fatalf("New A: %v", err)
	}
	defer ctxA.Close()
	ctxB, err := New(context.Background(), sourceB, NewBroadcaster(store))
	if err != nil {
		t.Fatalf("New B: %v", err)
	}
	defer ctxB.Close()

	if err := ctxA.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if ctxA.State() != Anonymous {
		t.Fatalf("tab A state=%v, want anonymous", ctxA.State())
	}
	if ctxB.State() != Anonymous {
		t.Fatalf("tab B state=%v, want anonymous", ctxB.State())
	}
}

func TestSignOutProviderErrorKeepsState(t *testing.T) {
	store := kv.NewMemory()
	holder := &sessionHolder{}
	holder.set(&Session{Token: "tok", UserID: "u1"})
	source := newFakeSource(holder)
	source.signOutErr = errors.New("provider unavailable")

	ctx, err := New(context.Background(), source, NewBroadcaster(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctx.Close()

	if err := ctx.SignOut(context.Background()); err == nil {
		t.Fatal("expected sign-out error")
	}
	if ctx.State() != Authenticated {
		t.Fatalf("state=%v, want authenticated after failed sign-out", ctx.State())
	}
}

func TestTokenRefreshAbsorbedWithoutBroadcast(t *testing.T) {
	store := kv.NewMemory()
	holder := &sessionHolder{}
	holder.set(&Session{Token: "tok-1", UserID: "u1"})
	source := newFakeSource(holder)

	ctx, err := New(context.Background(), source, NewBroadcaster(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctx.Close()

	var announcements int
	cancel := NewBroadcaster(store).Subscribe(func(Event) { announcements++ })
	defer cancel()

	refreshed := &Session{Token: "tok-2", UserID: "u1"}
	holder.set(refreshed)
	source.fire(refreshed)

	if ctx.State() != Authenticated {
		t.Fatalf("state=%v, want authenticated", ctx.State())
	}
	if ctx.Session().Token != "tok-2" {
		t.Fatalf("token=%q, want tok-2", ctx.Session().Token)
	}
	if announcements != 0 {
		t.Fatalf("refresh produced %d broadcasts, want 0", announcements)
	}
}

func TestSignInBroadcastsExactlyOnce(t *testing.T) {
	store := kv.NewMemory()
	holder := &sessionHolder{}
	source := newFakeSource(holder)

	ctx, err := New(context.Background(), source, NewBroadcaster(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ctx.Close()

	var events []Event
	cancel := NewBroadcaster(store).Subscribe(func(event Event) { events = append(events, event) })
	defer cancel()

	session := &Session{Token: "tok", UserID: "u1"}
	holder.set(session)
	source.fire(session)

	if len(events) != 1 || events[0].Type != SignedIn {
		t.Fatalf("events=%v, want one SIGNED_IN", events)
	}
}

func TestBroadcastsInSameMillisecondAreBothDelivered(t *testing.T) {
	store := kv.NewMemory()
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	announcer := NewBroadcaster(store)
	announcer.now = func() time.Time { return frozen }

	var events []Event
	cancel := NewBroadcaster(store).Subscribe(func(event Event) { events = append(events, event) })
	defer cancel()

	announcer.Announce(SignedIn)
	announcer.Announce(SignedOut)

	if len(events) != 2 {
		t.Fatalf("delivered %d events, want 2", len(events))
	}
	if events[0].Type != SignedIn || events[1].Type != SignedOut {
		t.Fatalf("events=%v, want SIGNED_IN then SIGNED_OUT", events)
	}
	if events[0].Timestamp != events[1].Timestamp {
		t.Fatalf("timestamps differ, the test needs a frozen clock")
	}
	if events[1].Seq <= events[0].Seq {
		t.Fatalf("seq not increasing: %d then %d", events[0].Seq, events[1].Seq)
	}
}
