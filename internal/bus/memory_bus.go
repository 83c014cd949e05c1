// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/hwenc/internal/log"
	"github.com/ManuGH/hwenc/internal/metrics"
)

// MemoryBus is an in-process pub/sub. It is not durable.
type MemoryBus struct {
	mu       sync.RWMutex
	subs     map[string][]chan Message
	capacity int
}

const (
	dropLogEvery    = 100
	defaultCapacity = 64
)

var dropCount atomic.Uint64

// NewMemoryBus returns a bus whose subscribers buffer up to 64 messages.
func NewMemoryBus() *MemoryBus {
	return NewMemoryBusWithCapacity(defaultCapacity)
}

// NewMemoryBusWithCapacity returns a bus with the given subscriber buffer size.
func NewMemoryBusWithCapacity(capacity int) *MemoryBus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryBus{subs: make(map[string][]chan Message), capacity: capacity}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// Publish implements Bus. Subscribers cannot close while a publish to their
// topic is in progress.
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	metrics.IncBusPublished(string(msg.Kind))
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		case <-ctx.Done():
			reason := publishDropReason(ctx.Err())
			b.dropped(topic, msg.Kind, reason)
			return fmt.Errorf("publish topic %q: %w", topic, ctx.Err())
		}
	}
	return nil
}

// Post implements Bus. It returns the number of subscribers reached.
func (b *MemoryBus) Post(topic string, msg Message) int {
	metrics.IncBusPublished(string(msg.Kind))
	delivered := 0
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
			delivered++
		default:
			b.dropped(topic, msg.Kind, "full")
		}
	}
	return delivered
}

func (b *MemoryBus) dropped(topic string, kind Kind, reason string) {
	metrics.IncBusDropReason(string(kind), reason)
	count := dropCount.Add(1)
	if count%dropLogEvery == 1 {
		logger := log.WithComponent("bus")
		logger.Warn().
			Str("topic", topic).
			Str("kind", string(kind)).
			Str("reason", reason).
			Uint64("dropped", count).
			Msg("memory bus dropped a message")
	}
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscriber, error) {
	ch := make(chan Message, b.capacity)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	return &memSub{b: b, topic: topic, ch: ch}, nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message
	once  sync.Once
}

func (s *memSub) C() <-chan Message {
	return s.ch
}

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s.ch {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		close(s.ch)
	})
	return nil
}

var _ Bus = (*MemoryBus)(nil)
