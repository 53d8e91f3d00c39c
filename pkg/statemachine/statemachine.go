package statemachine

import (
	"errors"
)

// ErrFinished is returned when a message is applied to a machine that has
// already produced its final result.
var ErrFinished = errors.New("statemachine: machine already finished")

// Policy controls what the machine does with messages that arrive ahead of
// the current round.
type Policy uint8

const (
	// BufferOutOfOrder keeps early messages and redelivers them after every
	// state transition. This is the default.
	BufferOutOfOrder Policy = iota
	// DiscardOutOfOrder surfaces early messages to the caller, who may drop
	// them or retry later.
	DiscardOutOfOrder
)

// StateMachine drives a protocol's states. It owns the current state, applies
// incoming messages, and depending on its Policy, buffers messages that
// arrive ahead of the current round and redelivers them after each
// transition.
type StateMachine[M, R any] struct {
	state    State[M, R]
	policy   Policy
	buffered []*PartyMessage[M]
	finished bool
}

// New returns a machine starting at initial, buffering out-of-order messages.
func New[M, R any](initial State[M, R]) *StateMachine[M, R] {
	return NewWithPolicy(initial, BufferOutOfOrder)
}

// NewWithPolicy returns a machine starting at initial with the given
// out-of-order policy.
func NewWithPolicy[M, R any](initial State[M, R], policy Policy) *StateMachine[M, R] {
	return &StateMachine[M, R]{state: initial, policy: policy}
}

// Finished reports whether the machine has produced its final result.
func (sm *StateMachine[M, R]) Finished() bool { return sm.finished }

// StateName returns the name of the current waiting state.
func (sm *StateMachine[M, R]) StateName() string {
	if sm.state == nil {
		return "final"
	}
	return sm.state.Name()
}

// HandleMessage applies one incoming message to the current state.
//
// Under BufferOutOfOrder, a message ahead of the current round is absorbed
// and an Empty output returned; buffered messages are replayed after every
// transition, so the caller never sees an OutOfOrder output. Under
// DiscardOutOfOrder the OutOfOrder output is returned to the caller
// unchanged.
func (sm *StateMachine[M, R]) HandleMessage(msg *PartyMessage[M]) (Output[M, R], error) {
	if sm.finished {
		return Output[M, R]{}, ErrFinished
	}
	out, err := sm.state.HandleMessage(msg)
	if err != nil {
		return Output[M, R]{}, err
	}
	switch out.kind {
	case outputOutOfOrder:
		if sm.policy == BufferOutOfOrder {
			sm.buffered = append(sm.buffered, out.outOfOrder)
			return Empty(sm.state), nil
		}
		return out, nil
	case outputFinal:
		sm.finished = true
		sm.state = nil
		return out, nil
	default:
		transitioned := out.state != sm.state
		sm.state = out.state
		if transitioned && len(sm.buffered) > 0 {
			return sm.replayBuffered(out.messages)
		}
		return out, nil
	}
}

// replayBuffered reapplies buffered messages until none of them makes
// progress, accumulating any messages they produce on top of acc.
func (sm *StateMachine[M, R]) replayBuffered(acc []*RecipientMessage[M]) (Output[M, R], error) {
	for {
		pending := sm.buffered
		sm.buffered = nil
		progressed := false
		for i, msg := range pending {
			out, err := sm.state.HandleMessage(msg)
			if err != nil {
				return Output[M, R]{}, err
			}
			switch out.kind {
			case outputOutOfOrder:
				sm.buffered = append(sm.buffered, out.outOfOrder)
			case outputFinal:
				sm.finished = true
				sm.state = nil
				// messages already accumulated are lost with the final
				// result if dropped here, so keep them on the output
				out.messages = acc
				sm.buffered = append(sm.buffered, pending[i+1:]...)
				return out, nil
			default:
				progressed = progressed || out.state != sm.state
				sm.state = out.state
				acc = append(acc, out.messages...)
			}
		}
		if !progressed || len(sm.buffered) == 0 {
			return Messages(sm.state, acc), nil
		}
	}
}
