// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus carries stage messages (errors, warnings, end of stream and
// state changes) from streaming goroutines to the application.
package bus

import (
	"context"
	"time"
)

// Kind classifies a message.
type Kind string

const (
	KindError        Kind = "error"
	KindWarning      Kind = "warning"
	KindEOS          Kind = "eos"
	KindStateChanged Kind = "state-changed"
)

// Message is one bus message.
type Message struct {
	Kind   Kind
	Source string
	Time   time.Time
	// Err is set for error and warning messages.
	Err error
	// Text carries a human readable detail, e.g. the new state.
	Text string
}

// Subscriber receives messages until closed.
type Subscriber interface {
	C() <-chan Message
	Close() error
}

// Bus is a topic based publish/subscribe channel.
type Bus interface {
	// Publish delivers msg to every subscriber, blocking until each accepted it
	// or ctx is done.
	Publish(ctx context.Context, topic string, msg Message) error
	// Post delivers msg without blocking; subscribers that are full miss it.
	Post(topic string, msg Message) int
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}
