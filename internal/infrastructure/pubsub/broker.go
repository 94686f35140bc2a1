package pubsub

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/metrics"
	"security-monitor-service/internal/logging"
)

const DefaultSubscriberBuffer = 64

var ErrBrokerClosed = errors.New("broker is closed")

// Broker is an in-process topic broker. Publishing never blocks: a
// subscriber whose buffer is full misses the message and the drop is counted.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	dropped atomic.Int64
	logger  *logging.Logger
	now     func() time.Time
}

func NewBroker(logger *logging.Logger) *Broker {
	return &Broker{
		subs:   make(map[uint64]*Subscription),
		logger: logger.With("component", "broker"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscription receives messages for topics matching its pattern.
type Subscription struct {
	id      uint64
	pattern string
	ch      chan domain.Message
	broker  *Broker
	once    sync.Once
	dropped atomic.Int64
}

// Subscribe registers a subscription. pattern is an exact topic, a
// path.Match glob such as alerts/*, or # for every topic.
func (b *Broker) Subscribe(pattern string, buffer int) (*Subscription, error) {
	if pattern == "" {
		pattern = domain.TopicAll
	}
	if !ValidPattern(pattern) {
		return nil, fmt.Errorf("subscribe %q: %w", pattern, path.ErrBadPattern)
	}
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		pattern: pattern,
		ch:      make(chan domain.Message, buffer),
		broker:  b,
	}
	b.subs[sub.id] = sub
	metrics.BrokerSubscribers.Inc()
	return sub, nil
}

// Publish fans the payload out to every matching subscription.
func (b *Broker) Publish(ctx context.Context, topic string, payload any) error {
	if topic == "" {
		return errors.New("publish: empty topic")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := domain.Message{Topic: topic, Payload: payload, PublishedAt: b.now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}

	for _, sub := range b.subs {
		if !Matches(sub.pattern, topic) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
			metrics.BrokerDroppedTotal.Inc()
			b.logger.Debug("subscriber buffer full, message dropped", "topic", topic, "pattern", sub.pattern)
		}
	}
	return nil
}

// ValidPattern reports whether pattern is usable with Subscribe.
func ValidPattern(pattern string) bool {
	if pattern == domain.TopicAll {
		return true
	}
	_, err := path.Match(pattern, "")
	return err == nil
}

// Matches reports whether topic satisfies pattern.
func Matches(pattern, topic string) bool {
	if pattern == domain.TopicAll || pattern == topic {
		return true
	}
	ok, err := path.Match(pattern, topic)
	return err == nil && ok
}

// Dropped returns the number of messages lost to full subscriber buffers.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription and rejects further use.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
		metrics.BrokerSubscribers.Dec()
	}
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan domain.Message {
	return s.ch
}

func (s *Subscription) Pattern() string {
	return s.pattern
}

// Dropped returns how many messages this subscriber missed.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	s.once.Do(func() { close(s.ch) })
	metrics.BrokerSubscribers.Dec()
}

var _ domain.Publisher = (*Broker)(nil)
