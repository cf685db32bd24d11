package hub

import "testing"

func TestBroadcastFiltersBySubscription(t *testing.T) {
	h := New()

	mine := &Client{ID: "c1", Send: make(chan []byte, 4), Subscription: Subscription{UserID: "u1", AnalysisID: "a1"}}
	other := &Client{ID: "c2", Send: make(chan []byte, 4), Subscription: Subscription{UserID: "u2"}}
	h.Register(mine)
	h.Register(other)

	h.Broadcast([]byte("update"), Subscription{UserID: "u1", AnalysisID: "a1"})

	select {
	case msg := <-mine.Send:
		if string(msg) != "update" {
			t.Fatalf("msg=%q", msg)
		}
	default:
		t.Fatal("subscribed client did not receive broadcast")
	}
	select {
	case msg := <-other.Send:
		t.Fatalf("unsubscribed client received %q", msg)
	default:
	}
}

func TestBroadcastAfterUnregister(t *testing.T) {
	h := New()
	client := &Client{ID: "c1", Send: make(chan []byte, 1), Subscription: Subscription{UserID: "u1"}}
	h.Register(client)
	h.Unregister(client)

	h.Broadcast([]byte("update"), Subscription{UserID: "u1"})
	if _, open := <-client.Send; open {
		t.Fatal("send channel still open after unregister")
	}
}

func TestParseSubscribe(t *testing.T) {
	msg, ok := ParseSubscribe([]byte(`{"action":"subscribe","analysis_id":"a1"}`))
	if !ok || msg.AnalysisID != "a1" {
		t.Fatalf("msg=%+v ok=%v", msg, ok)
	}
	if _, ok := ParseSubscribe([]byte(`{"action":"noop"}`)); ok {
		t.Fatal("accepted unknown action")
	}
	if _, ok := ParseSubscribe([]byte(`not json`)); ok {
		t.Fatal("accepted invalid JSON")
	}
}
