package runner

import (
	"context"
	"errors"

	"github.com/primelattice/tessera/pkg/party"
)

// ErrInstanceDone is returned when delivering to an instance that has
// already terminated.
var ErrInstanceDone = errors.New("runner: instance already terminated")

// PartyStream announces an established inbound stream from a peer.
type PartyStream struct {
	Party  party.ID
	Stream <-chan []byte
}

// MachineInit hands the instance its state machine. Metadata travels
// opaquely to the final result hook.
type MachineInit[M, R any] struct {
	Machine  StateMachine[M, R]
	Metadata []byte
}

// InitMessage is the union delivered on an instance's init mailbox: either a
// peer stream or the state machine itself.
type InitMessage[M, R any] struct {
	party   *PartyStream
	machine *MachineInit[M, R]
}

// InitParty builds the peer-stream variant.
func InitParty[M, R any](p party.ID, stream <-chan []byte) InitMessage[M, R] {
	return InitMessage[M, R]{party: &PartyStream{Party: p, Stream: stream}}
}

// InitStateMachine builds the state-machine variant.
func InitStateMachine[M, R any](m StateMachine[M, R], metadata []byte) InitMessage[M, R] {
	return InitMessage[M, R]{machine: &MachineInit[M, R]{Machine: m, Metadata: metadata}}
}

// Handle is the external face of a running instance: an init mailbox and a
// completion signal. It satisfies Instance so a Registry can route inbound
// streams without knowing the instance's message types.
type Handle[M, R any] struct {
	init chan InitMessage[M, R]
	done chan struct{}
}

func newHandle[M, R any]() *Handle[M, R] {
	return &Handle[M, R]{
		init: make(chan InitMessage[M, R]),
		done: make(chan struct{}),
	}
}

// Done is closed when the instance terminates.
func (h *Handle[M, R]) Done() <-chan struct{} { return h.done }

func (h *Handle[M, R]) deliver(ctx context.Context, msg InitMessage[M, R]) error {
	select {
	case h.init <- msg:
		return nil
	case <-h.done:
		return ErrInstanceDone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeliverPartyStream hands an established inbound peer stream to the
// instance.
func (h *Handle[M, R]) DeliverPartyStream(ctx context.Context, ps PartyStream) error {
	return h.deliver(ctx, InitMessage[M, R]{party: &ps})
}

// DeliverMachine hands the state machine to the instance.
func (h *Handle[M, R]) DeliverMachine(ctx context.Context, mi MachineInit[M, R]) error {
	return h.deliver(ctx, InitMessage[M, R]{machine: &mi})
}
