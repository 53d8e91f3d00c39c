// Package randbitwise implements the shared random bitwise value protocol:
// the cluster jointly produces, per requested element, shares of one random
// bit per modulus bit plus the share of the merged value Σ 2ᵏ·bₖ.
//
// The protocol runs in two rounds. The deal round exchanges bit share
// contributions together with contributions to a verification value; the
// reveal round opens that verification value, and the protocol aborts when
// it opens to zero, since then the generated bits cannot be certified.
package randbitwise

import (
	"errors"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"

	"github.com/primelattice/tessera/pkg/party"
	"github.com/primelattice/tessera/pkg/shamir"
	"github.com/primelattice/tessera/pkg/statemachine"
	"github.com/primelattice/tessera/protocols/internal/checked"
	"github.com/primelattice/tessera/protocols/internal/jar"
)

// ErrCount is returned when the requested element count is not positive.
var ErrCount = errors.New("randbitwise: count must be positive")

// Shares is the per-element output: one share per bit, plus the share of the
// merged value.
type Shares struct {
	Bits   []*saferith.Nat
	Merged *saferith.Nat
}

// Result is the protocol outcome. Aborted is set when the verification value
// opened to zero; Shares is nil in that case.
type Result struct {
	Shares  []Shares
	Aborted bool
}

// DealMessage carries bit share contributions (count·bits encoded elements,
// element-major) and the contribution to the verification value.
type DealMessage struct {
	Bits  [][]byte `cbor:"1,keyasint"`
	Check []byte   `cbor:"2,keyasint"`
}

// RevealMessage opens the sender's share of the verification value.
type RevealMessage struct {
	Check []byte `cbor:"1,keyasint"`
}

// Message is the protocol's wire message: exactly one field is set.
type Message struct {
	Deal   *DealMessage   `cbor:"1,keyasint,omitempty"`
	Reveal *RevealMessage `cbor:"2,keyasint,omitempty"`
}

// NewDealMessage wraps a DealMessage.
func NewDealMessage(m *DealMessage) *Message { return &Message{Deal: m} }

// NewRevealMessage wraps a RevealMessage.
func NewRevealMessage(m *RevealMessage) *Message { return &Message{Reveal: m} }

// New starts the protocol for count elements.
func New(sharer *shamir.Sharer, count int, rand io.Reader) (*statemachine.StateMachine[*Message, Result], []*statemachine.RecipientMessage[*Message], error) {
	if count <= 0 {
		return nil, nil, ErrCount
	}
	mod := sharer.Modulus()
	bits := int(mod.Bits())
	total, err := checked.Mul(count, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("randbitwise: deriving bit count: %w", err)
	}

	perParty := make(map[party.ID][][]byte, sharer.Parties().Len())
	for i := 0; i < total; i++ {
		bit, err := sampleBit(rand)
		if err != nil {
			return nil, nil, err
		}
		shares, err := sharer.Share(bit, sharer.DegreeT(), rand)
		if err != nil {
			return nil, nil, err
		}
		for id, share := range shares {
			perParty[id] = append(perParty[id], mod.Encode(share))
		}
	}

	check, err := mod.Random(rand)
	if err != nil {
		return nil, nil, err
	}
	checkShares, err := sharer.Share(check, sharer.DegreeT(), rand)
	if err != nil {
		return nil, nil, err
	}

	msgs := make([]*statemachine.RecipientMessage[*Message], 0, sharer.Parties().Len())
	for _, id := range sharer.Parties() {
		m, err := statemachine.NewMessage(statemachine.Single(id), NewDealMessage(&DealMessage{
			Bits:  perParty[id],
			Check: mod.Encode(checkShares[id]),
		}))
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, m)
	}

	state := &waitingDeal{
		sharer: sharer,
		count:  count,
		bits:   bits,
		dealt:  jar.New[*dealContribution](sharer.Parties()),
	}
	return statemachine.New[*Message, Result](state), msgs, nil
}

func sampleBit(rand io.Reader) (*saferith.Nat, error) {
	var b [1]byte
	if _, err := io.ReadFull(rand, b[:]); err != nil {
		return nil, err
	}
	return new(saferith.Nat).SetUint64(uint64(b[0] & 1)), nil
}

type dealContribution struct {
	bits  []*saferith.Nat
	check *saferith.Nat
}

// waitingDeal gathers everyone's bit and verification contributions.
type waitingDeal struct {
	sharer *shamir.Sharer
	count  int
	bits   int
	dealt  *jar.Jar[*dealContribution]
}

func (s *waitingDeal) Name() string { return "WAITING_DEAL" }

func (s *waitingDeal) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	var zero statemachine.Output[*Message, Result]
	if msg.Message.Deal == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	deal := msg.Message.Deal
	if len(deal.Bits) != s.count*s.bits {
		return zero, fmt.Errorf("randbitwise: expected %d bit shares from %s, got %d", s.count*s.bits, msg.Sender, len(deal.Bits))
	}
	mod := s.sharer.Modulus()
	contrib := &dealContribution{bits: make([]*saferith.Nat, len(deal.Bits))}
	for i, enc := range deal.Bits {
		x, err := mod.Decode(enc)
		if err != nil {
			return zero, fmt.Errorf("randbitwise: bit share %d from %s: %w", i, msg.Sender, err)
		}
		contrib.bits[i] = x
	}
	check, err := mod.Decode(deal.Check)
	if err != nil {
		return zero, fmt.Errorf("randbitwise: check share from %s: %w", msg.Sender, err)
	}
	contrib.check = check
	if err := s.dealt.Put(msg.Sender, contrib); err != nil {
		return zero, err
	}
	if !s.dealt.Full() {
		return statemachine.Empty[*Message, Result](s), nil
	}

	contribs, err := s.dealt.Ordered()
	if err != nil {
		return zero, err
	}
	// sum all contributions position-wise
	bitShares := make([]*saferith.Nat, s.count*s.bits)
	checkShare := new(saferith.Nat).SetUint64(0)
	for _, c := range contribs {
		for i, b := range c.bits {
			if bitShares[i] == nil {
				bitShares[i] = b
			} else {
				bitShares[i] = mod.Add(bitShares[i], b)
			}
		}
		checkShare = mod.Add(checkShare, c.check)
	}

	next := &waitingReveal{
		sharer:    s.sharer,
		count:     s.count,
		bits:      s.bits,
		bitShares: bitShares,
		revealed:  jar.New[*saferith.Nat](s.sharer.Parties()),
	}
	out, err := statemachine.NewMessage(statemachine.Multiple(s.sharer.Parties()), NewRevealMessage(&RevealMessage{
		Check: mod.Encode(checkShare),
	}))
	if err != nil {
		return zero, err
	}
	return statemachine.Messages[*Message, Result](next, []*statemachine.RecipientMessage[*Message]{out}), nil
}

// waitingReveal opens the verification value and builds the output shares.
type waitingReveal struct {
	sharer    *shamir.Sharer
	count     int
	bits      int
	bitShares []*saferith.Nat
	revealed  *jar.Jar[*saferith.Nat]
}

func (s *waitingReveal) Name() string { return "WAITING_REVEAL" }

func (s *waitingReveal) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	var zero statemachine.Output[*Message, Result]
	if msg.Message.Reveal == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	mod := s.sharer.Modulus()
	check, err := mod.Decode(msg.Message.Reveal.Check)
	if err != nil {
		return zero, fmt.Errorf("randbitwise: revealed check from %s: %w", msg.Sender, err)
	}
	if err := s.revealed.Put(msg.Sender, check); err != nil {
		return zero, err
	}
	if !s.revealed.Full() {
		return statemachine.Empty[*Message, Result](s), nil
	}

	verification, err := s.sharer.Recover(s.revealed.Map())
	if err != nil {
		return zero, err
	}
	if mod.IsZero(verification) {
		return statemachine.Final[*Message, Result](Result{Aborted: true}), nil
	}

	two := new(saferith.Nat).SetUint64(2)
	shares := make([]Shares, s.count)
	for e := 0; e < s.count; e++ {
		elem := Shares{Bits: s.bitShares[e*s.bits : (e+1)*s.bits]}
		merged := new(saferith.Nat).SetUint64(0)
		weight := new(saferith.Nat).SetUint64(1)
		for _, b := range elem.Bits {
			merged = mod.Add(merged, mod.Mul(weight, b))
			weight = mod.Mul(weight, two)
		}
		elem.Merged = merged
		shares[e] = elem
	}
	return statemachine.Final[*Message, Result](Result{Shares: shares}), nil
}
