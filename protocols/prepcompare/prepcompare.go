// Package prepcompare implements PREP-COMPARE, the preprocessing composite
// for secure comparison. It chains six sub-protocols, waiting for one at a
// time: random bitwise generation, random quaternary generation, the
// least-bit and most-bit share multiplications, prefix multiplication
// preprocessing, and zero sharing. Messages for a later stage are reported
// out of order and never touch the running stage; an abort in a sub-protocol
// short-circuits the chain with a typed Abort result.
package prepcompare

import (
	"errors"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"

	"github.com/primelattice/tessera/pkg/shamir"
	"github.com/primelattice/tessera/pkg/statemachine"
	"github.com/primelattice/tessera/protocols/internal/checked"
	"github.com/primelattice/tessera/protocols/prefixmult"
	"github.com/primelattice/tessera/protocols/randbitwise"
	"github.com/primelattice/tessera/protocols/randquaternary"
)

var (
	// ErrCount is returned when the requested element count is not positive.
	ErrCount = errors.New("prepcompare: count must be positive")
	// ErrFieldTooSmall is returned when the field has too few bits to
	// split into comparison batches.
	ErrFieldTooSmall = errors.New("prepcompare: field too small for comparison batches")
)

// StateCount is the number of waiting states of the composite, one per
// sub-protocol.
const StateCount = 6

// instance carries the configuration and the accumulated sub-protocol
// outputs across state transitions.
type instance struct {
	sharer     *shamir.Sharer
	rand       io.Reader
	count      int
	leastBatch int
	mostBatch  int

	bitwise    []randbitwise.Shares
	quaternary []randquaternary.Shares
	least      []*saferith.Nat
	most       []*saferith.Nat
	prefix     [][]prefixmult.Tuple
}

// New starts the composite for count elements. The returned messages are the
// initial messages of the first sub-protocol. Messages ahead of the running
// stage are buffered and replayed.
func New(sharer *shamir.Sharer, count int, rand io.Reader) (*statemachine.StateMachine[*Message, Result], []*statemachine.RecipientMessage[*Message], error) {
	return NewWithPolicy(sharer, count, rand, statemachine.BufferOutOfOrder)
}

// NewWithPolicy is New with an explicit out-of-order policy.
func NewWithPolicy(sharer *shamir.Sharer, count int, rand io.Reader, policy statemachine.Policy) (*statemachine.StateMachine[*Message, Result], []*statemachine.RecipientMessage[*Message], error) {
	if count <= 0 {
		return nil, nil, ErrCount
	}
	bits := int(sharer.Modulus().Bits())
	if bits < 3 {
		return nil, nil, ErrFieldTooSmall
	}
	// the odd bit positions pair with low digits, the even ones with high
	// digits, so the two stages cover (bits-1)/2 and (bits+1)/2 slots
	leastBatch := (bits - 1) / 2
	mostBatch := (bits + 1) / 2
	if _, err := checked.Mul(count, mostBatch); err != nil {
		return nil, nil, fmt.Errorf("prepcompare: deriving batch sizes: %w", err)
	}

	inst := &instance{
		sharer:     sharer,
		rand:       rand,
		count:      count,
		leastBatch: leastBatch,
		mostBatch:  mostBatch,
	}
	sub, msgs, err := randbitwise.New(sharer, count, rand)
	if err != nil {
		return nil, nil, fmt.Errorf("prepcompare: starting bitwise generation: %w", err)
	}
	state := &waitingBitwise{inst: inst, sub: sub}
	wrapped := statemachine.WrapMessages(msgs, NewBitwiseMessage)
	return statemachine.NewWithPolicy[*Message, Result](state, policy), wrapped, nil
}

// forward feeds one unwrapped message into a sub-machine and translates its
// output back into the composite's message space. A sub-level out-of-order
// report surfaces as a composite out-of-order report with the original
// message.
func forward[SM, SR any](
	self statemachine.State[*Message, Result],
	sub *statemachine.StateMachine[SM, SR],
	original *statemachine.PartyMessage[*Message],
	subMsg SM,
	wrap func(SM) *Message,
	onFinal func(SR) (statemachine.Output[*Message, Result], error),
) (statemachine.Output[*Message, Result], error) {
	var zero statemachine.Output[*Message, Result]
	out, err := sub.HandleMessage(&statemachine.PartyMessage[SM]{Sender: original.Sender, Message: subMsg})
	if err != nil {
		return zero, err
	}
	switch {
	case out.IsFinal():
		return onFinal(out.Result())
	case out.IsOutOfOrder():
		return statemachine.OutOfOrder(self, original), nil
	default:
		return statemachine.Messages(self, statemachine.WrapMessages(out.Messages(), wrap)), nil
	}
}
