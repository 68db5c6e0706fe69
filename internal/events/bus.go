package events

import (
	"context"
	"sync"
	"time"
)

const (
	defaultCapacity  = 1024
	defaultQueueSize = 64
)

// Options configures a Bus.
type Options struct {
	// Window is the batching delay. Zero delivers every publish immediately.
	Window time.Duration
	// Capacity bounds both the pending batch and the replay history.
	Capacity int
	// Retention enables replay; records older than Retention are pruned.
	Retention time.Duration
	// QueueSize is the number of batches each subscriber may hold.
	QueueSize int
}

// Record is a retained value with its sequence number.
type Record[T any] struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Value     T         `json:"value"`
}

// Bus is a bounded multicast broadcaster with time-windowed delivery.
type Bus[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	opts    Options
	nextSeq uint64
	history []Record[T]
	pending []T
	timer   *time.Timer
	subs    map[uint64]*Subscription[T]
	nextSub uint64
	closed  bool
	now     func() time.Time
}

// Subscription receives batches from a Bus until cancelled.
type Subscription[T any] struct {
	id      uint64
	ch      chan []T
	bus     *Bus[T]
	dropped uint64
	once    sync.Once
}

// New constructs a Bus.
func New[T any](opts Options) *Bus[T] {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	b := &Bus[T]{
		opts: opts,
		subs: make(map[uint64]*Subscription[T]),
		now:  time.Now,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish queues value for delivery. It never blocks on subscribers.
func (b *Bus[T]) Publish(value T) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.nextSeq++
	if b.opts.Retention > 0 {
		b.history = append(b.history, Record[T]{Sequence: b.nextSeq, Timestamp: b.now().UTC(), Value: value})
		b.pruneLocked()
		b.cond.Broadcast()
	}

	if len(b.pending) == b.opts.Capacity {
		b.pending = b.pending[1:]
	}
	b.pending = append(b.pending, value)

	if b.opts.Window <= 0 {
		b.flushLocked()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.opts.Window, b.flush)
	}
}

// Subscribe registers a subscriber. With replay set and retention enabled the
// first batch holds the retained history.
func (b *Bus[T]) Subscribe(replay bool) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	sub := &Subscription[T]{id: b.nextSub, ch: make(chan []T, b.opts.QueueSize), bus: b}
	if b.closed {
		close(sub.ch)
		return sub
	}
	if replay && b.opts.Retention > 0 {
		b.pruneLocked()
		if len(b.history) > 0 {
			batch := make([]T, len(b.history))
			for i, rec := range b.history {
				batch[i] = rec.Value
			}
			sub.ch <- batch
		}
	}
	b.subs[sub.id] = sub
	return sub
}

// Fetch returns retained records with a sequence greater than since and the
// sequence to pass on the next call. When wait is true, Fetch blocks until a
// record is available or ctx ends.
func (b *Bus[T]) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Record[T], uint64, error) {
	if limit <= 0 || limit > b.opts.Capacity {
		limit = b.opts.Capacity
	}

	stopWake := make(chan struct{})
	defer close(stopWake)
	if wait && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.cond.Broadcast()
				b.mu.Unlock()
			case <-stopWake:
			}
		}()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		b.pruneLocked()
		records, next := b.snapshotLocked(since, limit)
		if len(records) > 0 || !wait || b.closed {
			return records, next, ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil, next, err
		}
		b.cond.Wait()
	}
}

// Snapshot returns every retained value, oldest first.
func (b *Bus[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked()
	out := make([]T, len(b.history))
	for i, rec := range b.history {
		out[i] = rec.Value
	}
	return out
}

// Close flushes pending values and closes every subscription.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked()
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	b.cond.Broadcast()
}

func (b *Bus[T]) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Bus[T]) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) == 0 || b.closed {
		return
	}
	batch := b.pending
	b.pending = nil
	for _, sub := range b.subs {
		sub.deliver(batch)
	}
}

func (b *Bus[T]) pruneLocked() {
	if b.opts.Retention <= 0 {
		return
	}
	cutoff := b.now().Add(-b.opts.Retention)
	drop := 0
	for drop < len(b.history) && b.history[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if over := len(b.history) - drop - b.opts.Capacity; over > 0 {
		drop += over
	}
	if drop > 0 {
		b.history = append(b.history[:0:0], b.history[drop:]...)
	}
}

func (b *Bus[T]) snapshotLocked(since uint64, limit int) ([]Record[T], uint64) {
	start := len(b.history)
	for i, rec := range b.history {
		if rec.Sequence > since {
			start = i
			break
		}
	}
	if start == len(b.history) {
		return nil, min(since, b.nextSeq)
	}
	end := min(start+limit, len(b.history))
	out := make([]Record[T], end-start)
	copy(out, b.history[start:end])
	return out, out[len(out)-1].Sequence
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan []T {
	return s.ch
}

// Dropped reports how many batches were discarded because the queue was full.
func (s *Subscription[T]) Dropped() uint64 {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.dropped
}

// Cancel detaches the subscription and closes its channel.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subs[s.id]; ok {
			delete(s.bus.subs, s.id)
			close(s.ch)
		}
	})
}

// deliver runs with the bus lock held.
func (s *Subscription[T]) deliver(batch []T) {
	for {
		select {
		case s.ch <- batch:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}
