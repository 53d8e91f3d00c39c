// Package mult implements share multiplication. Each party multiplies its
// shares of the two operands locally, which yields a share on a degree-2t
// polynomial, then reshares that product at degree t. Interpolating the
// reshared values brings the result back to a degree-t sharing of the
// product.
//
// The protocol has a single waiting state and no abort path.
package mult

import (
	"errors"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"

	"github.com/primelattice/tessera/pkg/party"
	"github.com/primelattice/tessera/pkg/shamir"
	"github.com/primelattice/tessera/pkg/statemachine"
	"github.com/primelattice/tessera/protocols/internal/jar"
)

// ErrNoOperands is returned when starting the protocol with nothing to
// multiply.
var ErrNoOperands = errors.New("mult: no operands")

// Operand is one pair of shares to multiply.
type Operand struct {
	Left  *saferith.Nat
	Right *saferith.Nat
}

// Message carries one party's reshared local products, one encoded field
// element per operand.
type Message struct {
	Shares [][]byte `cbor:"1,keyasint"`
}

// New starts the protocol for the given operand batch. The returned initial
// messages carry, per cluster member, that member's share of each of our
// local products.
func New(sharer *shamir.Sharer, operands []Operand, rand io.Reader) (*statemachine.StateMachine[*Message, []*saferith.Nat], []*statemachine.RecipientMessage[*Message], error) {
	if len(operands) == 0 {
		return nil, nil, ErrNoOperands
	}
	mod := sharer.Modulus()

	perParty := make(map[party.ID][][]byte, sharer.Parties().Len())
	for _, op := range operands {
		local := mod.Mul(op.Left, op.Right)
		reshared, err := sharer.Share(local, sharer.DegreeT(), rand)
		if err != nil {
			return nil, nil, err
		}
		for id, share := range reshared {
			perParty[id] = append(perParty[id], mod.Encode(share))
		}
	}

	msgs := make([]*statemachine.RecipientMessage[*Message], 0, sharer.Parties().Len())
	for _, id := range sharer.Parties() {
		m, err := statemachine.NewMessage(statemachine.Single(id), &Message{Shares: perParty[id]})
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, m)
	}

	state := &waitingReshares{
		sharer: sharer,
		count:  len(operands),
		dealt:  jar.New[[]*saferith.Nat](sharer.Parties()),
	}
	return statemachine.New[*Message, []*saferith.Nat](state), msgs, nil
}

// waitingReshares gathers every party's reshared products and interpolates
// the result shares.
type waitingReshares struct {
	sharer *shamir.Sharer
	count  int
	dealt  *jar.Jar[[]*saferith.Nat]
}

func (s *waitingReshares) Name() string { return "WAITING_RESHARES" }

func (s *waitingReshares) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, []*saferith.Nat], error) {
	var zero statemachine.Output[*Message, []*saferith.Nat]
	if len(msg.Message.Shares) != s.count {
		return zero, fmt.Errorf("mult: expected %d reshares from %s, got %d", s.count, msg.Sender, len(msg.Message.Shares))
	}
	mod := s.sharer.Modulus()
	vector := make([]*saferith.Nat, s.count)
	for i, enc := range msg.Message.Shares {
		x, err := mod.Decode(enc)
		if err != nil {
			return zero, fmt.Errorf("mult: reshare %d from %s: %w", i, msg.Sender, err)
		}
		vector[i] = x
	}
	if err := s.dealt.Put(msg.Sender, vector); err != nil {
		return zero, err
	}
	if !s.dealt.Full() {
		return statemachine.Empty[*Message, []*saferith.Nat](s), nil
	}

	// interpolating the degree-2t polynomial through everybody's
	// degree-t reshares lands on a degree-t sharing of the product
	products := make([]*saferith.Nat, s.count)
	for i := 0; i < s.count; i++ {
		perOperand := make(map[party.ID]*saferith.Nat, s.sharer.Parties().Len())
		for _, id := range s.sharer.Parties() {
			v, _ := s.dealt.Get(id)
			perOperand[id] = v[i]
		}
		recovered, err := s.sharer.Recover(perOperand)
		if err != nil {
			return zero, err
		}
		products[i] = recovered
	}
	return statemachine.Final[*Message, []*saferith.Nat](products), nil
}
