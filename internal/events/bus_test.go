package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBusBatchesWithinWindow(t *testing.T) {
	bus := New[int](Options{Window: 20 * time.Millisecond})
	sub := bus.Subscribe(false)
	defer sub.Cancel()

	for i := 1; i <= 3; i++ {
		bus.Publish(i)
	}

	select {
	case batch := <-sub.C():
		if len(batch) != 3 || batch[0] != 1 || batch[2] != 3 {
			t.Fatalf("unexpected batch: %v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
}

func TestBusZeroWindowDeliversImmediately(t *testing.T) {
	bus := New[string](Options{})
	sub := bus.Subscribe(false)
	bus.Publish("a")
	select {
	case batch := <-sub.C():
		if len(batch) != 1 || batch[0] != "a" {
			t.Fatalf("unexpected batch: %v", batch)
		}
	default:
		t.Fatal("expected synchronous delivery")
	}
}

func TestBusSlowSubscriberDropsOldestWithoutBlocking(t *testing.T) {
	bus := New[int](Options{QueueSize: 2})
	slow := bus.Subscribe(false)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	first := <-slow.C()
	second := <-slow.C()
	if first[0] != 8 || second[0] != 9 {
		t.Fatalf("expected newest batches kept, got %v %v", first, second)
	}
	if slow.Dropped() != 8 {
		t.Fatalf("expected 8 dropped batches, got %d", slow.Dropped())
	}
}

func TestBusReplayHonoursRetention(t *testing.T) {
	bus := New[int](Options{Retention: time.Hour, Capacity: 3})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return clock }

	bus.Publish(1)
	clock = clock.Add(2 * time.Hour)
	bus.Publish(2)
	bus.Publish(3)
	bus.Publish(4)
	bus.Publish(5)

	sub := bus.Subscribe(true)
	replay := <-sub.C()
	if len(replay) != 3 || replay[0] != 3 || replay[2] != 5 {
		t.Fatalf("unexpected replay: %v", replay)
	}
	if got := bus.Snapshot(); len(got) != 3 {
		t.Fatalf("unexpected snapshot: %v", got)
	}
}

func TestBusFetchPagesBySequence(t *testing.T) {
	bus := New[string](Options{Retention: time.Hour})
	for _, v := range []string{"a", "b", "c"} {
		bus.Publish(v)
	}

	ctx := context.Background()
	records, next, err := bus.Fetch(ctx, 0, 2, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 || records[0].Value != "a" || next != 2 {
		t.Fatalf("unexpected first page: %+v next=%d", records, next)
	}
	records, next, _ = bus.Fetch(ctx, next, 10, false)
	if len(records) != 1 || records[0].Value != "c" || next != 3 {
		t.Fatalf("unexpected second page: %+v next=%d", records, next)
	}
	records, next, _ = bus.Fetch(ctx, next, 10, false)
	if len(records) != 0 || next != 3 {
		t.Fatalf("expected empty page, got %+v next=%d", records, next)
	}
}

func TestBusFetchWaitWakesOnPublish(t *testing.T) {
	bus := New[int](Options{Retention: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []Record[int]
	go func() {
		defer wg.Done()
		got, _, _ = bus.Fetch(ctx, 0, 10, true)
	}()
	time.Sleep(20 * time.Millisecond)
	bus.Publish(7)
	wg.Wait()
	if len(got) != 1 || got[0].Value != 7 {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestBusFetchWaitHonoursContext(t *testing.T) {
	bus := New[int](Options{Retention: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := bus.Fetch(ctx, 0, 10, true); err == nil {
		t.Fatal("expected context error")
	}
}

func TestBusCloseClosesSubscriptions(t *testing.T) {
	bus := New[int](Options{Window: time.Hour})
	sub := bus.Subscribe(false)
	bus.Publish(1)
	bus.Close()

	batch, ok := <-sub.C()
	if !ok || len(batch) != 1 {
		t.Fatalf("expected pending batch flushed on close, got %v %v", batch, ok)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected channel closed")
	}
	sub.Cancel()
	bus.Publish(2)
}
