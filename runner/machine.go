package runner

import (
	"github.com/primelattice/tessera/pkg/statemachine"
)

// StateMachine is what the runner drives: a protocol instance that yields
// its opening messages once and then consumes incoming messages one at a
// time.
type StateMachine[M, R any] interface {
	// Initialize returns the instance's opening messages. It is called
	// exactly once, before any message is delivered.
	Initialize() ([]*statemachine.RecipientMessage[M], error)
	// Proceed applies one incoming message.
	Proceed(msg *statemachine.PartyMessage[M]) (statemachine.Output[M, R], error)
	// StateName names the current waiting state, for logs.
	StateName() string
}

type machine[M, R any] struct {
	sm      *statemachine.StateMachine[M, R]
	initial []*statemachine.RecipientMessage[M]
}

// NewMachine adapts a state machine and its initial messages to the runner's
// interface.
func NewMachine[M, R any](sm *statemachine.StateMachine[M, R], initial []*statemachine.RecipientMessage[M]) StateMachine[M, R] {
	return &machine[M, R]{sm: sm, initial: initial}
}

func (m *machine[M, R]) Initialize() ([]*statemachine.RecipientMessage[M], error) {
	return m.initial, nil
}

func (m *machine[M, R]) Proceed(msg *statemachine.PartyMessage[M]) (statemachine.Output[M, R], error) {
	return m.sm.HandleMessage(msg)
}

func (m *machine[M, R]) StateName() string {
	return m.sm.StateName()
}
