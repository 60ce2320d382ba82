package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrRelayClosed is returned by Publish after Close.
var ErrRelayClosed = errors.New("relay closed")

// Relay is an in-process pub/sub channel hub. Each subscription has its own
// ordered queue so a slow handler never blocks publishers on other channels.
type Relay struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

type relayEvent struct {
	event string
	data  []byte
}

type subscription struct {
	ch   chan relayEvent
	done chan struct{}
	once sync.Once
}

func NewRelay() *Relay {
	return &Relay{subs: make(map[string]map[*subscription]struct{})}
}

// Publish delivers data to every current subscriber of channel.
func (r *Relay) Publish(ctx context.Context, channel, event string, data []byte) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrRelayClosed
	}
	targets := make([]*subscription, 0, len(r.subs[channel]))
	for sub := range r.subs[channel] {
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	payload := append([]byte(nil), data...)
	for _, sub := range targets {
		select {
		case sub.ch <- relayEvent{event: event, data: payload}:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers handler for every event published on channel. Handlers
// for one subscription run sequentially in publish order.
func (r *Relay) Subscribe(_ context.Context, channel string, handler func(event string, data []byte)) (func(), error) {
	sub := &subscription{
		ch:   make(chan relayEvent, 64),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRelayClosed
	}
	if r.subs[channel] == nil {
		r.subs[channel] = make(map[*subscription]struct{})
	}
	r.subs[channel][sub] = struct{}{}
	r.mu.Unlock()

	go func() {
		for {
			select {
			case ev := <-sub.ch:
				handler(ev.event, ev.data)
			case <-sub.done:
				return
			}
		}
	}()

	cancel := func() {
		r.mu.Lock()
		if set, ok := r.subs[channel]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(r.subs, channel)
			}
		}
		r.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
	}
	return cancel, nil
}

// Close drops every subscription.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for channel, set := range r.subs {
		for sub := range set {
			sub.once.Do(func() { close(sub.done) })
		}
		delete(r.subs, channel)
	}
	return nil
}
