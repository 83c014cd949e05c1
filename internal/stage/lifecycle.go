// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stage

import (
	"github.com/ManuGH/hwenc/internal/fsm"
)

// State is the stage lifecycle state.
type State string

const (
	StateNull       State = "null"
	StateReady      State = "ready"
	StateConfigured State = "configured"
	StateDrained    State = "drained"
)

// Event drives lifecycle transitions.
type Event string

const (
	EventStart     Event = "start"
	EventConfigure Event = "configure"
	EventDrain     Event = "drain"
	EventStop      Event = "stop"
)

func newLifecycle() *fsm.Machine[State, Event] {
	m, err := fsm.New(StateNull, []fsm.Transition[State, Event]{
		{From: StateNull, Event: EventStart, To: StateReady},
		{From: StateReady, Event: EventConfigure, To: StateConfigured},
		{From: StateConfigured, Event: EventDrain, To: StateDrained},
		{From: StateReady, Event: EventStop, To: StateNull},
		{From: StateConfigured, Event: EventStop, To: StateNull},
		{From: StateDrained, Event: EventStop, To: StateNull},
	})
	if err != nil {
		panic(err)
	}
	return m
}
