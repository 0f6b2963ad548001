package pubsub

import (
	"errors"
	"sync"
)

var ErrNoTopics = errors.New("no topics given")

// PubSub is a publish/subscribe messaging system. Publishing never blocks: a
// message is dropped for any subscriber whose buffer is full, so a slow reader
// cannot stall a publisher.
type PubSub[T any] interface {
	// Publish publishes the data to the given topic and returns the number of
	// subscribers that received it.
	Publish(topic string, data T) int
	// Subscribe returns a channel which will yield messages that match the given
	// list of topics.
	Subscribe(topics ...string) (<-chan T, error)
	// Unsubscribe removes the channel from every topic and closes it.
	Unsubscribe(ch <-chan T)
}

type pubsub[T any] struct {
	subscriptions map[string][]chan T
	mu            sync.RWMutex
	bufferSize    int
}

func New[T any](bufferSize int) PubSub[T] {
	return &pubsub[T]{
		subscriptions: make(map[string][]chan T),
		bufferSize:    bufferSize,
	}
}

func (ps *pubsub[T]) Publish(topic string, data T) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	delivered := 0
	for _, ch := range ps.subscriptions[topic] {
		select {
		case ch <- data:
			delivered++
		default:
		}
	}
	return delivered
}

func (ps *pubsub[T]) Subscribe(topics ...string) (<-chan T, error) {
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	ch := make(chan T, ps.bufferSize)

	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, topic := range topics {
		ps.subscriptions[topic] = append(ps.subscriptions[topic], ch)
	}

	return ch, nil
}

func (ps *pubsub[T]) Unsubscribe(sub <-chan T) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var found chan T
	for topic, chans := range ps.subscriptions {
		kept := chans[:0]
		for _, ch := range chans {
			if (<-chan T)(ch) == sub {
				found = ch
				continue
			}
			kept = append(kept, ch)
		}
		ps.subscriptions[topic] = kept
	}
	if found != nil {
		close(found)
	}
}
