package memory

import (
	"context"
	"testing"
)

// TestPublisherStoresMessages verifies IDs, topics and encoded payloads are recorded.
func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "runs", map[string]string{"run_id": "r1"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "audit", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[0].Data) != `{"run_id":"r1"}` {
		t.Fatalf("unexpected encoded payload %s", msgs[0].Data)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

// TestPublisherRejectsAfterClose verifies closed publishers fail fast.
func TestPublisherRejectsAfterClose(t *testing.T) {
	t.Parallel()

	pub := New()
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := pub.Publish(context.Background(), "runs", "x"); err == nil {
		t.Fatal("expected error after close")
	}
	if _, err := pub.Publish(context.Background(), "runs", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}
