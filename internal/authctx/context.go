package authctx

import (
	"context"
	"fmt"
	"sync"
)

// Session mirrors the identity provider's current session for one context.
// The provider owns the durable credential; this is a per-context copy.
type Session struct {
	Token  string
	UserID string
	Email  string
}

// SessionSource is the identity provider client: the authoritative source
// of auth state. Everything the Context believes is re-derivable from it.
type SessionSource interface {
	CurrentSession(ctx context.Context) (*Session, error)
	OnSessionChange(fn func(session *Session)) (cancel func())
	SignOut(ctx context.Context) error
}

type State int

const (
	Initializing State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Context holds the auth state for one logical tab. It is explicitly
// constructed and disposed; nothing here is package-level.
//
// Transitions come from two feeds: the session source's own change events
// (local transitions, broadcast to peers) and broadcast events from peer
// contexts (never trusted: the source is re-queried for ground truth).
type Context struct {
	source      SessionSource
	broadcaster *Broadcaster

	mu      sync.Mutex
	state   State
	session *Session

	cancels []func()
}

// New subscribes to both feeds and resolves the initial session. A source
// error during the initial resolution is returned and the context is not
// usable; the caller owns retry.
func New(ctx context.Context, source SessionSource, broadcaster *Broadcaster) (*Context, error) {
	c := &Context{
		source:      source,
		broadcaster: broadcaster,
		state:       Initializing,
	}

	c.cancels = append(c.cancels, source.OnSessionChange(func(session *Session) {
		c.apply(session, true)
	}))
	c.cancels = append(c.cancels, broadcaster.Subscribe(func(Event) {
		// The envelope payload is ignored on purpose.
		current, err := c.source.CurrentSession(context.Background())
		if err != nil {
			return
		}
		c.apply(current, false)
	}))

	session, err := source.CurrentSession(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("resolve initial session: %w", err)
	}

	c.mu.Lock()
	if c.state == Initializing {
		if session != nil {
			c.state = Authenticated
			c.session = session
		} else {
			c.state = Anonymous
		}
	}
	c.mu.Unlock()

	return c, nil
}

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the current session mirror, nil when anonymous.
func (c *Context) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SignOut asks the provider to end the session. On provider error the local
// state is left untouched: the source, not the caller, decides auth state.
func (c *Context) SignOut(ctx context.Context) error {
	if err := c.source.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (c *Context) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
}

// apply folds a (re-)resolved session into the state machine. broadcast is
// set only for transitions reported by the session source itself; applying
// a peer-triggered re-query must not re-announce, or two contexts would
// ping-pong forever.
func (c *Context) apply(session *Session, broadcast bool) {
	c.mu.Lock()
	prev := c.state
	if session != nil {
		c.state = Authenticated
		c.session = session
	} else {
		c.state = Anonymous
		c.session = nil
	}
	next := c.state
	c.mu.Unlock()

	if !broadcast || prev == next {
		// Token refreshes land here: the payload updates, the state label
		// does not, and nothing is announced.
		return
	}
	switch next {
	case Authenticated:
		c.broadcaster.Announce(SignedIn)
	case Anonymous:
		if prev == Authenticated {
			c.broadcaster.Announce(SignedOut)
		}
	}
}
