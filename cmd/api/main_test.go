package main

import (
	"context"
	"errors"
	"testing"

	"chapattend/internal/attendance"
	"chapattend/internal/queue"
)

type fakeQueue struct {
	err       error
	published []queue.Message
}

func (f *fakeQueue) Publish(_ context.Context, msg queue.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeQueue) Consume(context.Context) (<-chan queue.Message, error) {
	return nil, nil
}

type fakeTallyCache struct {
	dropped []string
	err     error
}

func (f *fakeTallyCache) DropTally(_ context.Context, sessionID string) error {
	f.dropped = append(f.dropped, sessionID)
	return f.err
}

func TestPublishCheckinDeliversEvent(t *testing.T) {
	q := &fakeQueue{}
	cache := &fakeTallyCache{}
	rec := attendance.Record{ID: "rec-1", SessionID: "sess-1", Status: attendance.StatusOnTime}

	publishCheckin(context.Background(), q, cache, rec)

	if len(q.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(q.published))
	}
	msg := q.published[0]
	if msg.Type != "checkin" || string(msg.Body) != "rec-1" {
		t.Errorf("published %q/%q", msg.Type, msg.Body)
	}
	if len(cache.dropped) != 0 {
		t.Errorf("tally dropped on a successful publish: %v", cache.dropped)
	}
}

func TestPublishCheckinDropsTallyOnFailure(t *testing.T) {
	// A lost event never reaches the worker, so the cached tally would
	// undercount forever unless it is invalidated here.
	q := &fakeQueue{err: errors.New("connection refused")}
	cache := &fakeTallyCache{}
	rec := attendance.Record{ID: "rec-2", SessionID: "sess-1", Status: attendance.StatusLate}

	publishCheckin(context.Background(), q, cache, rec)

	if len(cache.dropped) != 1 || cache.dropped[0] != "sess-1" {
		t.Fatalf("dropped = %v, want the session's tally invalidated", cache.dropped)
	}
}

func TestPublishCheckinSurvivesDropFailure(t *testing.T) {
	q := &fakeQueue{err: errors.New("connection refused")}
	cache := &fakeTallyCache{err: errors.New("redis down")}
	rec := attendance.Record{ID: "rec-3", SessionID: "sess-1", Status: attendance.StatusOnTime}

	// Both failures are logged, neither panics the handler path.
	publishCheckin(context.Background(), q, cache, rec)

	if len(cache.dropped) != 1 {
		t.Errorf("drop not attempted: %v", cache.dropped)
	}
}
