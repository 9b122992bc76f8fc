package chatws

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseClientUserID(t *testing.T) {
	if id, ok := ParseClientUserID("42"); !ok || id != 42 {
		t.Fatalf("expected (42, true), got (%d, %v)", id, ok)
	}
	for _, raw := range []string{"", "abc", "0", "-7"} {
		if _, ok := ParseClientUserID(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestHubDeliversPublishedEventsToRecipients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, 7)
	hub.Register(client)

	hub.Publish([]int64{7, 9}, Event{Type: EventMessageAdded, Data: map[string]int64{"id": 5}})

	select {
	case payload := <-client.send:
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if event.Type != EventMessageAdded {
			t.Fatalf("unexpected event type %q", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
}

func TestHubDeliversOncePerUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil, 7)
	hub.Register(client)

	hub.Publish([]int64{7, 7, 7}, Event{Type: EventGroupUpdated})

	select {
	case <-client.send:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delivery")
	}

	select {
	case <-client.send:
		t.Fatalf("expected a single delivery for duplicate recipients")
	case <-time.After(50 * time.Millisecond):
	}
}
