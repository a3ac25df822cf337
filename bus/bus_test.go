package bus

import (
	"testing"
	"time"
)

func expectPayload(t *testing.T, sub *Subscription, want any) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		if got.Payload != want {
			t.Fatalf("payload = %v, want %v", got.Payload, want)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for %v", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %v", got.Payload)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(Topic{"config", "hal"})
	conn.Publish(conn.NewMessage(Topic{"config", "hal"}, "hello", false))
	expectPayload(t, sub, "hello")
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(Topic{"config", "hal"}, "persist", true))

	sub := conn.Subscribe(Topic{"config", "hal"})
	expectPayload(t, sub, "persist")
}

func TestRetainedCleared(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(Topic{"a"}, "v", true))
	conn.Publish(conn.NewMessage(Topic{"a"}, nil, true))

	sub := conn.Subscribe(Topic{"a"})
	expectNoMessage(t, sub)
}

func TestWildcard_SingleLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	s1 := c.Subscribe(Topic{"a", "+", "c"})
	s2 := c.Subscribe(Topic{"a", "+", "+"})
	s3 := c.Subscribe(Topic{"a", "b", "+"})
	sNo := c.Subscribe(Topic{"a", "+", "d"})

	c.Publish(b.NewMessage(Topic{"a", "b", "c"}, "m1", false))
	expectPayload(t, s1, "m1")
	expectPayload(t, s2, "m1")
	expectPayload(t, s3, "m1")
	expectNoMessage(t, sNo)

	c.Publish(b.NewMessage(Topic{"a", "x", "y"}, "m2", false))
	expectPayload(t, s2, "m2")
	expectNoMessage(t, s1)
	expectNoMessage(t, s3)

	// Shorter topics never match a longer pattern.
	c.Publish(b.NewMessage(Topic{"a", "c"}, "m3", false))
	expectNoMessage(t, s1)
	expectNoMessage(t, s2)
	expectNoMessage(t, s3)
}

func TestWildcard_MultiLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	all := c.Subscribe(Topic{"hal", "#"})

	c.Publish(b.NewMessage(Topic{"hal", "state"}, "m1", false))
	expectPayload(t, all, "m1")

	c.Publish(b.NewMessage(Topic{"hal", "capability", "clock", 0, "value"}, "m2", false))
	expectPayload(t, all, "m2")

	c.Publish(b.NewMessage(Topic{"other"}, "m3", false))
	expectNoMessage(t, all)
}

func TestWildcard_IntTokens(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	sub := c.Subscribe(Topic{"hal", "capability", "clock", "+", "value"})
	c.Publish(b.NewMessage(Topic{"hal", "capability", "clock", 0, "value"}, "tick", false))
	expectPayload(t, sub, "tick")
}

func TestRetainedReplayThroughWildcard(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(Topic{"hal", "capability", "clock", 0, "info"}, "i0", true))
	c.Publish(b.NewMessage(Topic{"hal", "capability", "clock", 1, "info"}, "i1", true))

	sub := c.Subscribe(Topic{"hal", "capability", "clock", "+", "info"})
	got := map[any]bool{}
	for i := 0; i < 2; i++ {
		select {
		case m := <-sub.Channel():
			got[m.Payload] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for retained replay")
		}
	}
	if !got["i0"] || !got["i1"] {
		t.Fatalf("retained replay incomplete: %v", got)
	}
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")

	sub := c.Subscribe(Topic{"t"})
	for i := 0; i < 5; i++ {
		c.Publish(b.NewMessage(Topic{"t"}, i, false))
	}
	expectPayload(t, sub, 3)
	expectPayload(t, sub, 4)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	sub := c.Subscribe(Topic{"t"})
	c.Unsubscribe(sub)
	c.Publish(b.NewMessage(Topic{"t"}, "gone", false))

	if _, ok := <-sub.Channel(); ok {
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestReply(t *testing.T) {
	b := NewBus(4)
	server := b.NewConnection("server")
	client := b.NewConnection("client")

	reqSub := server.Subscribe(Topic{"svc", "do"})
	repSub := client.Subscribe(Topic{"client", "reply"})

	msg := client.NewMessage(Topic{"svc", "do"}, "ping", false)
	msg.ReplyTo = Topic{"client", "reply"}
	client.Publish(msg)

	select {
	case req := <-reqSub.Channel():
		server.Reply(req, "pong", false)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("request not delivered")
	}
	expectPayload(t, repSub, "pong")
}
