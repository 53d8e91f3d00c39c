// Package statemachine contains the round engine shared by every protocol in
// this module. A protocol is written as a set of State values which consume
// one incoming message at a time and produce an Output: new outgoing
// messages, a final result, or a report that the message belongs to a later
// round.
package statemachine

// State is a single waiting state of a protocol. HandleMessage consumes one
// incoming message and returns the resulting output. States are pure with
// respect to transport: they never perform IO.
//
// M is the protocol's message type, R its final result type.
type State[M, R any] interface {
	// HandleMessage applies one incoming message. An error means the
	// protocol instance is broken and must stop; a protocol-level abort is
	// not an error but a value of R.
	HandleMessage(msg *PartyMessage[M]) (Output[M, R], error)

	// Name identifies the waiting state, for logs.
	Name() string
}

type outputKind uint8

const (
	outputEmpty outputKind = iota
	outputMessages
	outputOutOfOrder
	outputFinal
)

// Output is the result of applying a message to a State. Exactly one of the
// four shapes holds: Empty, Messages, OutOfOrder or Final.
type Output[M, R any] struct {
	kind       outputKind
	state      State[M, R]
	messages   []*RecipientMessage[M]
	outOfOrder *PartyMessage[M]
	result     R
}

// Empty continues in state next without emitting messages.
func Empty[M, R any](next State[M, R]) Output[M, R] {
	return Output[M, R]{kind: outputEmpty, state: next}
}

// Messages continues in state next and emits msgs.
func Messages[M, R any](next State[M, R], msgs []*RecipientMessage[M]) Output[M, R] {
	if len(msgs) == 0 {
		return Empty(next)
	}
	return Output[M, R]{kind: outputMessages, state: next, messages: msgs}
}

// OutOfOrder reports that msg belongs to a later round. The state is
// unchanged and the message is handed back untouched.
func OutOfOrder[M, R any](current State[M, R], msg *PartyMessage[M]) Output[M, R] {
	return Output[M, R]{kind: outputOutOfOrder, state: current, outOfOrder: msg}
}

// Final terminates the protocol with result.
func Final[M, R any](result R) Output[M, R] {
	return Output[M, R]{kind: outputFinal, result: result}
}

// IsEmpty reports whether the output carries neither messages nor a result.
func (o Output[M, R]) IsEmpty() bool { return o.kind == outputEmpty }

// IsOutOfOrder reports whether the consumed message was ahead of the current
// round.
func (o Output[M, R]) IsOutOfOrder() bool { return o.kind == outputOutOfOrder }

// IsFinal reports whether the protocol has terminated.
func (o Output[M, R]) IsFinal() bool { return o.kind == outputFinal }

// Messages returns the emitted messages, if any.
func (o Output[M, R]) Messages() []*RecipientMessage[M] { return o.messages }

// OutOfOrderMessage returns the message that was ahead of the current round.
func (o Output[M, R]) OutOfOrderMessage() *PartyMessage[M] { return o.outOfOrder }

// Result returns the final result. Only meaningful when IsFinal is true.
func (o Output[M, R]) Result() R { return o.result }

// State returns the state to continue in. Nil when IsFinal is true.
func (o Output[M, R]) State() State[M, R] { return o.state }
