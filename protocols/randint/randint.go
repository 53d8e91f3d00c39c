// Package randint implements the shared random integer protocol. Every party
// deals shares of locally sampled secrets to the whole cluster; once all
// contributions are in, they are pushed through a Vandermonde map so that up
// to t adversarial contributions cannot bias the output.
//
// The protocol has a single waiting state and no abort path.
package randint

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

// Mode selects what is being dealt.
type Mode uint8

const (
	// RandomOfDegreeT deals fresh uniform secrets on degree-t polynomials.
	RandomOfDegreeT Mode = iota
	// ZerosOfDegree2T deals zero on degree-2t polynomials, producing the
	// blinding shares used when opening products.
	ZerosOfDegree2T
)

// ErrCount is returned when the requested element count is not positive.
var ErrCount = errors.New("randint: count must be positive")

// Message carries one party's dealt shares, one encoded field element per
// run.
type Message struct {
	Shares [][]byte `cbor:"1,keyasint"`
}

// New starts the protocol. It returns the state machine together with the
// initial messages, one per cluster member, each carrying that member's
// shares of our contributions.
func New(mode Mode, sharer *shamir.Sharer, count int, rand io.Reader) (*statemachine.StateMachine[*Message, []*saferith.Nat], []*statemachine.RecipientMessage[*Message], error) {
	if count <= 0 {
		return nil, nil, ErrCount
	}
	runCount := checked.CeilDiv(count, sharer.OutputsPerRun())
	if _, err := checked.Mul(runCount, sharer.Parties().Len()); err != nil {
		return nil, nil, fmt.Errorf("randint: deriving run count: %w", err)
	}

	degree := sharer.DegreeT()
	if mode == ZerosOfDegree2T {
		degree = sharer.Degree2T()
	}
	mod := sharer.Modulus()

	// perParty[p] collects the encoded share of each run's secret for p
	perParty := make(map[party.ID][][]byte, sharer.Parties().Len())
	for run := 0; run < runCount; run++ {
		secret := new(saferith.Nat).SetUint64(0)
		if mode == RandomOfDegreeT {
			var err error
			secret, err = mod.Random(rand)
			if err != nil {
				return nil, nil, err
			}
		}
		shares, err := sharer.Share(secret, degree, rand)
		if err != nil {
			return nil, nil, err
		}
		for id, share := range shares {
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

	state := &waitingShares{
		sharer:   sharer,
		count:    count,
		runCount: runCount,
		dealt:    jar.New[[]*saferith.Nat](sharer.Parties()),
	}
	return statemachine.New[*Message, []*saferith.Nat](state), msgs, nil
}

// waitingShares gathers one share vector per party and combines them.
type waitingShares struct {
	sharer   *shamir.Sharer
	count    int
	runCount int
	dealt    *jar.Jar[[]*saferith.Nat]
}

func (s *waitingShares) Name() string { return "WAITING_SHARES" }

func (s *waitingShares) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, []*saferith.Nat], error) {
	var zero statemachine.Output[*Message, []*saferith.Nat]
	if len(msg.Message.Shares) != s.runCount {
		return zero, fmt.Errorf("randint: expected %d shares from %s, got %d", s.runCount, msg.Sender, len(msg.Message.Shares))
	}
	mod := s.sharer.Modulus()
	vector := make([]*saferith.Nat, s.runCount)
	for i, enc := range msg.Message.Shares {
		x, err := mod.Decode(enc)
		if err != nil {
			return zero, fmt.Errorf("randint: share %d from %s: %w", i, msg.Sender, err)
		}
		vector[i] = x
	}
	if err := s.dealt.Put(msg.Sender, vector); err != nil {
		return zero, err
	}
	if !s.dealt.Full() {
		return statemachine.Empty[*Message, []*saferith.Nat](s), nil
	}

	vectors, err := s.dealt.Ordered()
	if err != nil {
		return zero, err
	}
	outputs := make([]*saferith.Nat, 0, s.count)
	for run := 0; run < s.runCount && len(outputs) < s.count; run++ {
		contribs := make([]*saferith.Nat, len(vectors))
		for i, v := range vectors {
			contribs[i] = v[run]
		}
		combined, err := s.sharer.CombineContributions(contribs)
		if err != nil {
			return zero, err
		}
		outputs = append(outputs, combined...)
	}
	return statemachine.Final[*Message, []*saferith.Nat](outputs[:s.count]), nil
}
