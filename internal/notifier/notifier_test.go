package notifier

import (
	"testing"
	"time"

	"github.com/chain-explorer/internal/types"
)

func TestHub_PublishAndReceive(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	id, events := hub.Subscribe()
	if id == "" {
		t.Fatal("Expected a subscriber id")
	}

	hub.Publish(types.EventNewBlock, map[string]uint64{"number": 100})

	select {
	case event := <-events:
		if event.Kind != types.EventNewBlock {
			t.Errorf("Expected kind %s, got %s", types.EventNewBlock, event.Kind)
		}
		if event.At.IsZero() {
			t.Error("Expected event timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected to receive the published event")
	}
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	_, a := hub.Subscribe()
	_, b := hub.Subscribe()

	if got := hub.SubscriberCount(); got != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", got)
	}

	hub.Publish(types.EventTokenDeployed, nil)

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case event := <-ch:
			if event.Kind != types.EventTokenDeployed {
				t.Errorf("Subscriber %s: expected token_deployed, got %s", name, event.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %s did not receive the event", name)
		}
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	// Slow subscriber never drains its channel
	hub.Subscribe()
	_, healthy := hub.Subscribe()

	// Publish well past the buffer depth; Publish must never block
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Publish(types.EventNewBlock, i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// The healthy subscriber still has a full buffer of events to drain
	received := 0
	for {
		select {
		case <-healthy:
			received++
			continue
		default:
		}
		break
	}
	if received != subscriberBuffer {
		t.Errorf("Expected healthy subscriber to hold %d buffered events, got %d", subscriberBuffer, received)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	id, events := hub.Subscribe()
	hub.Unsubscribe(id)

	if _, ok := <-events; ok {
		t.Error("Expected channel to be closed after Unsubscribe")
	}
	if got := hub.SubscriberCount(); got != 0 {
		t.Errorf("Expected 0 subscribers, got %d", got)
	}

	// Double unsubscribe is a no-op
	hub.Unsubscribe(id)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()

	_, events := hub.Subscribe()
	hub.Close()

	if _, ok := <-events; ok {
		t.Error("Expected channel to be closed after hub Close")
	}

	// Operations on a closed hub are safe no-ops
	hub.Publish(types.EventNewBlock, nil)
	hub.Close()

	id, ch := hub.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("Expected subscription on a closed hub to be closed immediately")
	}
	hub.Unsubscribe(id)
}
