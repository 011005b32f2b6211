package orderfeed

import (
	"context"
	"errors"
	"sync"
)

// ErrBrokerClosed is returned when subscribing to a closed broker.
var ErrBrokerClosed = errors.New("order feed broker closed")

// Broker fans committed changes out to in-process subscribers. Publish never
// blocks; each subscription drains its own unbounded queue in publish order.
type Broker struct {
	mu     sync.Mutex
	subs   map[*brokerSubscription]struct{}
	closed bool
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*brokerSubscription]struct{})}
}

// Subscribe registers a subscription. It is closed when ctx ends or Close is called.
func (b *Broker) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	sub := &brokerSubscription{
		broker: b,
		filter: filter,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan ChangeEvent),
	}
	b.subs[sub] = struct{}{}
	go sub.pump()
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}

// Publish delivers event to every subscription whose filter matches and
// reports how many received it.
func (b *Broker) Publish(event ChangeEvent) int {
	b.mu.Lock()
	targets := make([]*brokerSubscription, 0, len(b.subs))
	for sub := range b.subs {
		if sub.filter.Matches(event) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	delivered := 0
	for _, sub := range targets {
		if sub.enqueue(event) {
			delivered++
		}
	}
	return delivered
}

// Close ends every subscription and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*brokerSubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}

func (b *Broker) remove(sub *brokerSubscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

type brokerSubscription struct {
	broker *Broker
	filter Filter

	mu    sync.Mutex
	queue []ChangeEvent

	wake      chan struct{}
	done      chan struct{}
	out       chan ChangeEvent
	closeOnce sync.Once
}

func (s *brokerSubscription) Events() <-chan ChangeEvent {
	return s.out
}

func (s *brokerSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
	return nil
}

func (s *brokerSubscription) enqueue(event ChangeEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *brokerSubscription) pump() {
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
		s.queue[0] = ChangeEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.done:
			return
		}
	}
}
