package events

import (
	"testing"
	"time"
)

func TestHubPublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub()

	first, cancelFirst := hub.Subscribe()
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe()
	defer cancelSecond()

	hub.Publish(Event{Type: TypeJoin, Name: "alice", Room: "general"})

	for _, sub := range []<-chan Event{first, second} {
		select {
		case ev := <-sub:
			if ev.Type != TypeJoin || ev.Name != "alice" {
				t.Fatalf("unexpected event: %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := NewHub()

	sub, cancel := hub.Subscribe()
	if hub.SubscriberCount() != 1 {
		t.Fatalf("subscribers: got %d, want 1", hub.SubscriberCount())
	}

	cancel()
	if hub.SubscriberCount() != 0 {
		t.Fatalf("subscribers after cancel: got %d, want 0", hub.SubscriberCount())
	}

	// The channel is closed, so a publish after cancel cannot reach it.
	hub.Publish(Event{Type: TypeLeave, Name: "alice", Room: "general"})
	if _, ok := <-sub; ok {
		t.Error("expected closed channel after cancel")
	}

	// Cancelling twice must not panic.
	cancel()
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub()

	sub, cancel := hub.Subscribe()
	defer cancel()

	// Overfill the queue without draining; the extras are dropped and the
	// publisher never blocks.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(Event{Type: TypeJoin, Name: "burst"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	received := 0
	for {
		select {
		case <-sub:
			received++
			continue
		default:
		}
		break
	}
	if received != subscriberBuffer {
		t.Errorf("received: got %d, want %d", received, subscriberBuffer)
	}
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Publish(Event{Type: TypeJoin, Name: "alice"})
}
