package culink

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/slotlink/go-cu/cu"
	"github.com/slotlink/go-cu/internal/queue"
	"github.com/slotlink/go-cu/logger"
)

// eventDispatcher fans status events out to subscribers.
//
// Each subscriber owns an unbounded queue and a pump goroutine that drains it
// into the subscriber's channel, so publishing never blocks on a slow
// consumer and subscribers cannot stall each other. Events are delivered to
// each subscriber in publish order.
//
// Subscribers belong to the session, not to one connection: they survive a
// Disconnect/Connect cycle and only go away when their cancel function is
// called or the dispatcher's context ends.
type eventDispatcher struct {
	ctx         context.Context
	logger      logger.Logger
	subscribers *xsync.MapOf[uint64, *subscriber]
	nextID      atomic.Uint64
}

func newEventDispatcher(ctx context.Context, l logger.Logger) *eventDispatcher {
	return &eventDispatcher{
		ctx:         ctx,
		logger:      l,
		subscribers: xsync.NewMapOf[uint64, *subscriber](),
	}
}

// publish enqueues the event for every registered subscriber.
func (d *eventDispatcher) publish(event cu.Event) {
	d.subscribers.Range(func(_ uint64, sub *subscriber) bool {
		sub.enqueue(event)
		return true
	})
}

// subscribe registers a new subscriber and returns its channel together with
// a cancel function. The cancel function is idempotent; after it returns no
// more events are enqueued and the channel is closed.
func (d *eventDispatcher) subscribe() (<-chan cu.Event, func()) {
	id := d.nextID.Add(1)

	sub := &subscriber{
		ch:     make(chan cu.Event),
		events: queue.NewSliceQueue[cu.Event](eventQueuePrealloc),
		done:   make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)

	d.subscribers.Store(id, sub)

	go sub.pump(d.ctx)

	cancel := func() {
		d.subscribers.Delete(id)
		sub.close()
	}

	return sub.ch, cancel
}

// subscriberCount returns the number of registered subscribers.
func (d *eventDispatcher) subscriberCount() int {
	return d.subscribers.Size()
}

const eventQueuePrealloc = 16

// subscriber is one registered event consumer.
type subscriber struct {
	ch chan cu.Event

	mu     sync.Mutex
	cond   *sync.Cond
	events queue.Queue[cu.Event]
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

// enqueue adds an event to the subscriber's queue and wakes the pump.
func (s *subscriber) enqueue(event cu.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.events.Enqueue(event)
	s.cond.Signal()
}

// close marks the subscriber closed and wakes the pump so it can exit.
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cond.Signal()
		s.mu.Unlock()

		close(s.done)
	})
}

// pump drains the subscriber's queue into its channel. It is the only
// goroutine that closes the channel.
func (s *subscriber) pump(ctx context.Context) {
	defer close(s.ch)

	// wake the pump out of cond.Wait when the dispatcher context ends
	stopWatch := context.AfterFunc(ctx, s.close)
	defer stopWatch()

	for {
		s.mu.Lock()
		for s.events.IsEmpty() && !s.closed {
			s.cond.Wait()
		}

		if s.closed {
			s.mu.Unlock()
			return
		}

		event, _ := s.events.Dequeue()
		s.mu.Unlock()

		select {
		case s.ch <- event:
		case <-s.done:
			return
		}
	}
}
