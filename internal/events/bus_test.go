package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishBeforeStart(t *testing.T) {
	b := New(nil, 8)
	err := b.Publish(context.Background(), Event{Kind: KindLogEntry})
	if err != ErrNotStarted {
		t.Errorf("Publish before Start = %v, want ErrNotStarted", err)
	}
}

func TestPublishUnknownKind(t *testing.T) {
	b := New(nil, 8)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	err := b.Publish(context.Background(), Event{Kind: "not-a-real-kind"})
	if err == nil {
		t.Fatal("Publish with unknown kind should error")
	}
}

func TestStartTwice(t *testing.T) {
	b := New(nil, 8)
	if err := b.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer b.Stop()

	if err := b.Start(); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestPublishSingleSubscriber(t *testing.T) {
	b := New(nil, 8)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	got := make(chan Event, 1)
	unsub := b.Subscribe(KindJobCreated, func(e Event) { got <- e })
	defer unsub()

	want := Event{Kind: KindJobCreated, JobID: "job-1", Payload: map[string]any{"type": "build"}}
	if err := b.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case e := <-got:
		if e.Kind != want.Kind || e.JobID != want.JobID {
			t.Errorf("got %+v, want %+v", e, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeOnlyMatchingKindReceives(t *testing.T) {
	b := New(nil, 8)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	jobEvents := make(chan Event, 4)
	unsub := b.Subscribe(KindJobCreated, func(e Event) { jobEvents <- e })
	defer unsub()

	if err := b.Publish(context.Background(), Event{Kind: KindLogEntry}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(context.Background(), Event{Kind: KindJobCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case e := <-jobEvents:
		if e.Kind != KindJobCreated {
			t.Errorf("got kind %q, want job-created", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for matching event")
	}

	select {
	case e := <-jobEvents:
		t.Errorf("received unexpected second event %+v", e)
	case <-time.After(50 * time.Millisecond):
		// Correct: the log-entry event was not delivered to this subscriber.
	}
}

func TestSubscribeAllReceivesEveryKind(t *testing.T) {
	b := New(nil, 8)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	var mu sync.Mutex
	var seen []Kind
	unsub := b.SubscribeAll(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Kind)
		mu.Unlock()
	})
	defer unsub()

	kinds := []Kind{KindJobCreated, KindLogEntry, KindMetricUpdate}
	for _, k := range kinds {
		if err := b.Publish(context.Background(), Event{Kind: k}); err != nil {
			t.Fatalf("Publish %s: %v", k, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= len(kinds) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only saw %d of %d events", n, len(kinds))
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, k := range kinds {
		if seen[i] != k {
			t.Errorf("event %d = %q, want %q (order must match publication order)", i, seen[i], k)
		}
	}
}

func TestSubscriberPanicDoesNotPoisonOthers(t *testing.T) {
	b := New(nil, 8)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	unsubPanic := b.Subscribe(KindJobCreated, func(Event) { panic("boom") })
	defer unsubPanic()

	got := make(chan Event, 1)
	unsubOK := b.Subscribe(KindJobCreated, func(e Event) { got <- e })
	defer unsubOK()

	if err := b.Publish(context.Background(), Event{Kind: KindJobCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("panicking subscriber blocked delivery to a healthy subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil, 8)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	got := make(chan Event, 4)
	unsub := b.Subscribe(KindSystemStatus, func(e Event) { got <- e })
	unsub()

	if err := b.Publish(context.Background(), Event{Kind: KindSystemStatus}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case e := <-got:
		t.Errorf("unsubscribed callback still received %+v", e)
	case <-time.After(50 * time.Millisecond):
		// Correct.
	}
}

func TestSubscriberCount(t *testing.T) {
	b := New(nil, 8)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("initial count = %d, want 0", got)
	}

	unsub1 := b.Subscribe(KindJobCreated, func(Event) {})
	unsub2 := b.SubscribeAll(func(Event) {})

	if got := b.SubscriberCount(); got != 2 {
		t.Errorf("after 2 subscribes = %d, want 2", got)
	}

	unsub1()
	if got := b.SubscriberCount(); got != 1 {
		t.Errorf("after 1 unsubscribe = %d, want 1", got)
	}

	unsub2()
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("after all unsubscribed = %d, want 0", got)
	}
}

func TestPublishBlocksWhenQueueSaturated(t *testing.T) {
	b := New(nil, 1)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	// No subscribers drain events, so the dispatcher will pull the first
	// event off the queue near-instantly, freeing a slot. To actually
	// observe blocking, hold the dispatcher inside a slow subscriber:
	// event 1 is held by the dispatcher, event 2 fills the single queue
	// slot, and event 3 has nowhere to go.
	release := make(chan struct{})
	unsub := b.Subscribe(KindSystemStatus, func(Event) { <-release })
	defer unsub()

	if err := b.Publish(context.Background(), Event{Kind: KindSystemStatus}); err != nil {
		t.Fatalf("Publish 1: %v", err)
	}
	if err := b.Publish(context.Background(), Event{Kind: KindSystemStatus}); err != nil {
		t.Fatalf("Publish 2: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, Event{Kind: KindSystemStatus})
	if err != context.DeadlineExceeded {
		t.Errorf("Publish while dispatcher blocked = %v, want DeadlineExceeded", err)
	}

	close(release)
}

func TestStopDrainsQueuedEvents(t *testing.T) {
	b := New(nil, 8)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var mu sync.Mutex
	count := 0
	unsub := b.SubscribeAll(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer unsub()

	for i := 0; i < 5; i++ {
		if err := b.Publish(context.Background(), Event{Kind: KindLogEntry}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("delivered %d events before stop drained, want 5", count)
	}
}
