// Package prefixmult implements PREP-PREFIX-MULT, the preprocessing step for
// unbounded fan-in prefix multiplication. Per batch slot the cluster deals a
// masking element together with an inverse-side companion, then opens a
// check product per slot. A zero check product means some masked element is
// not invertible and the whole run aborts, since the masks would leak.
//
// The output per batch is a sequence of mask/domino tuples: the first domino
// is the first inverse companion, every later domino links an inverse
// companion with the preceding mask.
package prefixmult

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

var (
	// ErrBatchCount is returned when the batch count is not positive.
	ErrBatchCount = errors.New("prefixmult: batch count must be positive")
	// ErrBatchSize is returned when a batch has fewer than two slots, for
	// which prefix multiplication is meaningless.
	ErrBatchSize = errors.New("prefixmult: batch size must be at least 2")
)

// Tuple is one slot of the preprocessing output.
type Tuple struct {
	Mask   *saferith.Nat
	Domino *saferith.Nat
}

// Result is the protocol outcome. Aborted reports the inverse-check failure;
// Batches is nil in that case.
type Result struct {
	Batches [][]Tuple
	Aborted bool
}

// DealMessage carries mask and inverse-companion contributions, batch-major,
// one encoded field element per slot.
type DealMessage struct {
	Masks    [][]byte `cbor:"1,keyasint"`
	Inverses [][]byte `cbor:"2,keyasint"`
}

// RevealMessage opens the sender's share of every slot's check product.
type RevealMessage struct {
	Checks [][]byte `cbor:"1,keyasint"`
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

// New starts the protocol for batchCount batches of batchSize slots each.
func New(sharer *shamir.Sharer, batchCount, batchSize int, rand io.Reader) (*statemachine.StateMachine[*Message, Result], []*statemachine.RecipientMessage[*Message], error) {
	if batchCount <= 0 {
		return nil, nil, ErrBatchCount
	}
	if batchSize < 2 {
		return nil, nil, ErrBatchSize
	}
	total, err := checked.Mul(batchCount, batchSize)
	if err != nil {
		return nil, nil, fmt.Errorf("prefixmult: deriving slot count: %w", err)
	}
	mod := sharer.Modulus()

	type planes struct{ masks, inverses [][]byte }
	perParty := make(map[party.ID]*planes, sharer.Parties().Len())
	for _, id := range sharer.Parties() {
		perParty[id] = &planes{}
	}
	for i := 0; i < total; i++ {
		mask, err := mod.RandomNonZero(rand)
		if err != nil {
			return nil, nil, err
		}
		inv, err := mod.Inverse(mask)
		if err != nil {
			return nil, nil, err
		}
		maskShares, err := sharer.Share(mask, sharer.DegreeT(), rand)
		if err != nil {
			return nil, nil, err
		}
		invShares, err := sharer.Share(inv, sharer.DegreeT(), rand)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range sharer.Parties() {
			pp := perParty[id]
			pp.masks = append(pp.masks, mod.Encode(maskShares[id]))
			pp.inverses = append(pp.inverses, mod.Encode(invShares[id]))
		}
	}

	msgs := make([]*statemachine.RecipientMessage[*Message], 0, sharer.Parties().Len())
	for _, id := range sharer.Parties() {
		pp := perParty[id]
		m, err := statemachine.NewMessage(statemachine.Single(id), NewDealMessage(&DealMessage{
			Masks:    pp.masks,
			Inverses: pp.inverses,
		}))
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, m)
	}

	state := &waitingDeal{
		sharer:     sharer,
		batchCount: batchCount,
		batchSize:  batchSize,
		dealt:      jar.New[*contribution](sharer.Parties()),
	}
	return statemachine.New[*Message, Result](state), msgs, nil
}

type contribution struct {
	masks    []*saferith.Nat
	inverses []*saferith.Nat
}

// waitingDeal gathers contributions and opens the check products.
type waitingDeal struct {
	sharer     *shamir.Sharer
	batchCount int
	batchSize  int
	dealt      *jar.Jar[*contribution]
}

func (s *waitingDeal) Name() string { return "WAITING_DEAL" }

func (s *waitingDeal) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	var zero statemachine.Output[*Message, Result]
	if msg.Message.Deal == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	total := s.batchCount * s.batchSize
	deal := msg.Message.Deal
	if len(deal.Masks) != total || len(deal.Inverses) != total {
		return zero, fmt.Errorf("prefixmult: expected %d mask and inverse shares from %s, got %d/%d", total, msg.Sender, len(deal.Masks), len(deal.Inverses))
	}
	mod := s.sharer.Modulus()
	contrib := &contribution{
		masks:    make([]*saferith.Nat, total),
		inverses: make([]*saferith.Nat, total),
	}
	for i := 0; i < total; i++ {
		m, err := mod.Decode(deal.Masks[i])
		if err != nil {
			return zero, fmt.Errorf("prefixmult: mask share %d from %s: %w", i, msg.Sender, err)
		}
		v, err := mod.Decode(deal.Inverses[i])
		if err != nil {
			return zero, fmt.Errorf("prefixmult: inverse share %d from %s: %w", i, msg.Sender, err)
		}
		contrib.masks[i] = m
		contrib.inverses[i] = v
	}
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
	masks := make([]*saferith.Nat, total)
	inverses := make([]*saferith.Nat, total)
	for _, c := range contribs {
		for i := 0; i < total; i++ {
			if masks[i] == nil {
				masks[i] = c.masks[i]
				inverses[i] = c.inverses[i]
				continue
			}
			masks[i] = mod.Add(masks[i], c.masks[i])
			inverses[i] = mod.Add(inverses[i], c.inverses[i])
		}
	}

	// the check product is a degree-2t share of mask·companion per slot
	checks := make([][]byte, total)
	for i := 0; i < total; i++ {
		checks[i] = mod.Encode(mod.Mul(masks[i], inverses[i]))
	}

	next := &waitingReveal{
		sharer:     s.sharer,
		batchCount: s.batchCount,
		batchSize:  s.batchSize,
		masks:      masks,
		inverses:   inverses,
		revealed:   jar.New[[]*saferith.Nat](s.sharer.Parties()),
	}
	out, err := statemachine.NewMessage(statemachine.Multiple(s.sharer.Parties()), NewRevealMessage(&RevealMessage{Checks: checks}))
	if err != nil {
		return zero, err
	}
	return statemachine.Messages[*Message, Result](next, []*statemachine.RecipientMessage[*Message]{out}), nil
}

// waitingReveal opens every check product and builds the tuples.
type waitingReveal struct {
	sharer     *shamir.Sharer
	batchCount int
	batchSize  int
	masks      []*saferith.Nat
	inverses   []*saferith.Nat
	revealed   *jar.Jar[[]*saferith.Nat]
}

func (s *waitingReveal) Name() string { return "WAITING_REVEAL" }

func (s *waitingReveal) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	var zero statemachine.Output[*Message, Result]
	if msg.Message.Reveal == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	total := s.batchCount * s.batchSize
	if len(msg.Message.Reveal.Checks) != total {
		return zero, fmt.Errorf("prefixmult: expected %d check shares from %s, got %d", total, msg.Sender, len(msg.Message.Reveal.Checks))
	}
	mod := s.sharer.Modulus()
	vector := make([]*saferith.Nat, total)
	for i, enc := range msg.Message.Reveal.Checks {
		x, err := mod.Decode(enc)
		if err != nil {
			return zero, fmt.Errorf("prefixmult: check share %d from %s: %w", i, msg.Sender, err)
		}
		vector[i] = x
	}
	if err := s.revealed.Put(msg.Sender, vector); err != nil {
		return zero, err
	}
	if !s.revealed.Full() {
		return statemachine.Empty[*Message, Result](s), nil
	}

	for i := 0; i < total; i++ {
		shares := make(map[party.ID]*saferith.Nat, s.sharer.Parties().Len())
		for _, id := range s.sharer.Parties() {
			v, _ := s.revealed.Get(id)
			shares[id] = v[i]
		}
		opened, err := s.sharer.Recover(shares)
		if err != nil {
			return zero, err
		}
		if mod.IsZero(opened) {
			return statemachine.Final[*Message, Result](Result{Aborted: true}), nil
		}
	}

	batches := make([][]Tuple, s.batchCount)
	for b := 0; b < s.batchCount; b++ {
		tuples := make([]Tuple, s.batchSize)
		base := b * s.batchSize
		for i := 0; i < s.batchSize; i++ {
			t := Tuple{Mask: s.masks[base+i]}
			if i == 0 {
				t.Domino = s.inverses[base]
			} else {
				t.Domino = mod.Mul(s.inverses[base+i], s.masks[base+i-1])
			}
			tuples[i] = t
		}
		batches[b] = tuples
	}
	return statemachine.Final[*Message, Result](Result{Batches: batches}), nil
}
