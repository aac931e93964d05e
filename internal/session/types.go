package session

import (
	"sync/atomic"
	"time"
)

// State represents the lifecycle state of the session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
	StateShutDown      State = "shutdown"
)

// Terminal reports whether no further transition can leave s through
// initialization.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed || s == StateShutDown
}

// Outcome is the result of initialization handed to every waiter.
// Err is nil when Ready is true.
type Outcome struct {
	Ready bool
	Err   error
}

// Listener receives the stream of one generation. Nil funcs are skipped.
// Exactly one of OnDone or OnError terminates a stream.
type Listener struct {
	OnToken func(token string)
	OnDone  func()
	OnError func(err error)
}

func (l Listener) token(tok string) {
	if l.OnToken != nil {
		l.OnToken(tok)
	}
}

func (l Listener) done() {
	if l.OnDone != nil {
		l.OnDone()
	}
}

func (l Listener) fail(err error) {
	if l.OnError != nil {
		l.OnError(err)
	}
}

// generation is the occupied value of the slot; a nil *generation is the
// empty slot.
type generation struct {
	id        uint64
	listener  Listener
	startedAt time.Time
	tokens    int
	// abandoned is set by Shutdown so callbacks already queued on the
	// dispatcher are dropped instead of run.
	abandoned atomic.Bool
}

// Snapshot is a read-only projection of the session state.
type Snapshot struct {
	State               State
	Reason              string
	ModelPath           string
	Busy                bool
	GenerationID        uint64
	GenerationStartedAt time.Time
	LastTokenAt         time.Time
	Generations         uint64
	Rejections          uint64
	Degraded            uint64
	StaleEvents         uint64
}
