package orchestration

import (
	"sync"

	"github.com/koscakluka/ema-voice/core/events"
)

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// eventBus fans events out to subscribers. Each subscriber has its own
// unbounded queue so a slow reader never blocks the turn goroutine, and
// events reach every subscriber in emission order.
type eventBus struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	closed      bool
}

type subscriber struct {
	mu      sync.Mutex
	queue   []events.Event
	wake    chan struct{}
	out     chan events.Event
	done    chan struct{}
	stopped bool
}

func newEventBus() *eventBus {
	return &eventBus{subscribers: map[int]*subscriber{}}
}

func (b *eventBus) Emit(event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		sub.enqueue(event)
	}
}

// Subscribe returns a channel carrying every event emitted after the call and
// a function that ends the subscription. The channel is closed once the
// subscription ends or the bus is closed.
func (b *eventBus) Subscribe() (<-chan events.Event, func()) {
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan events.Event),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.out)
		return sub.out, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.mu.Unlock()

	go sub.run()

	var once sync.Once
	return sub.out, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			sub.stop()
		})
	}
}

func (b *eventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		sub.stop()
	}
}

func (s *subscriber) enqueue(event events.Event) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.done)
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
