package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	if err := q.Publish(ctx, Message{Type: "checkin", Body: []byte("rec-1")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Type != "checkin" || string(msg.Body) != "rec-1" {
			t.Errorf("got %q/%q", msg.Type, msg.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestInMemoryPublishRespectsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(1)
	_ = q.Publish(ctx, Message{Type: "checkin"})

	cancel()
	if err := q.Publish(ctx, Message{Type: "checkin"}); err == nil {
		t.Error("expected context error on full queue")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: "checkin", Body: []byte("rec-42|extra")}
	got := deserialize(serialize(msg))
	if got.Type != msg.Type || string(got.Body) != string(msg.Body) {
		t.Errorf("round trip lost data: %q/%q", got.Type, got.Body)
	}

	// Legacy payloads without a type survive as body-only messages.
	got = deserialize("no-separator")
	if got.Type != "" || string(got.Body) != "no-separator" {
		t.Errorf("separator-free payload: %q/%q", got.Type, got.Body)
	}
}
