// Package randquaternary implements the shared random quaternary value
// protocol. Per requested element the cluster produces one quaternary digit
// per digit position, each digit held as three shares: the low bit, the high
// bit, and their cross product. The merged value Σ 4ᵏ·(low + 2·high) is
// derived alongside.
//
// This is a one-round dealer protocol with no abort path.
package randquaternary

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
	// ErrCount is returned when the requested element count is not positive.
	ErrCount = errors.New("randquaternary: count must be positive")
	// ErrDigits is returned when the digit count is not positive.
	ErrDigits = errors.New("randquaternary: digits must be positive")
)

// Digit is one quaternary digit: low and high bit shares plus their cross
// product share.
type Digit struct {
	Low   *saferith.Nat
	High  *saferith.Nat
	Cross *saferith.Nat
}

// Shares is the per-element output.
type Shares struct {
	Digits []Digit
	Merged *saferith.Nat
}

// Message carries one party's digit contributions, element-major, one
// encoded field element per digit and plane.
type Message struct {
	Low   [][]byte `cbor:"1,keyasint"`
	High  [][]byte `cbor:"2,keyasint"`
	Cross [][]byte `cbor:"3,keyasint"`
}

// New starts the protocol for count elements of the given digit width.
func New(sharer *shamir.Sharer, count, digits int, rand io.Reader) (*statemachine.StateMachine[*Message, []Shares], []*statemachine.RecipientMessage[*Message], error) {
	if count <= 0 {
		return nil, nil, ErrCount
	}
	if digits <= 0 {
		return nil, nil, ErrDigits
	}
	total, err := checked.Mul(count, digits)
	if err != nil {
		return nil, nil, fmt.Errorf("randquaternary: deriving digit count: %w", err)
	}
	mod := sharer.Modulus()

	type planes struct{ low, high, cross [][]byte }
	perParty := make(map[party.ID]*planes, sharer.Parties().Len())
	for _, id := range sharer.Parties() {
		perParty[id] = &planes{}
	}
	var bitBuf [1]byte
	for i := 0; i < total; i++ {
		if _, err := io.ReadFull(rand, bitBuf[:]); err != nil {
			return nil, nil, err
		}
		low := uint64(bitBuf[0] & 1)
		high := uint64(bitBuf[0] >> 1 & 1)
		values := []uint64{low, high, low * high}
		dealt := make([]map[party.ID]*saferith.Nat, 3)
		for p, v := range values {
			dealt[p], err = sharer.Share(new(saferith.Nat).SetUint64(v), sharer.DegreeT(), rand)
			if err != nil {
				return nil, nil, err
			}
		}
		for _, id := range sharer.Parties() {
			pp := perParty[id]
			pp.low = append(pp.low, mod.Encode(dealt[0][id]))
			pp.high = append(pp.high, mod.Encode(dealt[1][id]))
			pp.cross = append(pp.cross, mod.Encode(dealt[2][id]))
		}
	}

	msgs := make([]*statemachine.RecipientMessage[*Message], 0, sharer.Parties().Len())
	for _, id := range sharer.Parties() {
		pp := perParty[id]
		m, err := statemachine.NewMessage(statemachine.Single(id), &Message{Low: pp.low, High: pp.high, Cross: pp.cross})
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, m)
	}

	state := &waitingDeal{
		sharer: sharer,
		count:  count,
		digits: digits,
		dealt:  jar.New[*contribution](sharer.Parties()),
	}
	return statemachine.New[*Message, []Shares](state), msgs, nil
}

type contribution struct {
	low, high, cross []*saferith.Nat
}

// waitingDeal gathers every party's digit contributions and combines them.
type waitingDeal struct {
	sharer *shamir.Sharer
	count  int
	digits int
	dealt  *jar.Jar[*contribution]
}

func (s *waitingDeal) Name() string { return "WAITING_DEAL" }

func (s *waitingDeal) decodePlane(plane [][]byte, sender party.ID, name string) ([]*saferith.Nat, error) {
	if len(plane) != s.count*s.digits {
		return nil, fmt.Errorf("randquaternary: expected %d %s shares from %s, got %d", s.count*s.digits, name, sender, len(plane))
	}
	mod := s.sharer.Modulus()
	out := make([]*saferith.Nat, len(plane))
	for i, enc := range plane {
		x, err := mod.Decode(enc)
		if err != nil {
			return nil, fmt.Errorf("randquaternary: %s share %d from %s: %w", name, i, sender, err)
		}
		out[i] = x
	}
	return out, nil
}

func (s *waitingDeal) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, []Shares], error) {
	var zero statemachine.Output[*Message, []Shares]
	mod := s.sharer.Modulus()
	low, err := s.decodePlane(msg.Message.Low, msg.Sender, "low")
	if err != nil {
		return zero, err
	}
	high, err := s.decodePlane(msg.Message.High, msg.Sender, "high")
	if err != nil {
		return zero, err
	}
	cross, err := s.decodePlane(msg.Message.Cross, msg.Sender, "cross")
	if err != nil {
		return zero, err
	}
	if err := s.dealt.Put(msg.Sender, &contribution{low: low, high: high, cross: cross}); err != nil {
		return zero, err
	}
	if !s.dealt.Full() {
		return statemachine.Empty[*Message, []Shares](s), nil
	}

	contribs, err := s.dealt.Ordered()
	if err != nil {
		return zero, err
	}
	total := s.count * s.digits
	sum := func(sel func(*contribution) []*saferith.Nat) []*saferith.Nat {
		acc := make([]*saferith.Nat, total)
		for _, c := range contribs {
			plane := sel(c)
			for i, v := range plane {
				if acc[i] == nil {
					acc[i] = v
				} else {
					acc[i] = mod.Add(acc[i], v)
				}
			}
		}
		return acc
	}
	lows := sum(func(c *contribution) []*saferith.Nat { return c.low })
	highs := sum(func(c *contribution) []*saferith.Nat { return c.high })
	crosses := sum(func(c *contribution) []*saferith.Nat { return c.cross })

	two := new(saferith.Nat).SetUint64(2)
	four := new(saferith.Nat).SetUint64(4)
	out := make([]Shares, s.count)
	for e := 0; e < s.count; e++ {
		elem := Shares{Digits: make([]Digit, s.digits)}
		merged := new(saferith.Nat).SetUint64(0)
		weight := new(saferith.Nat).SetUint64(1)
		for k := 0; k < s.digits; k++ {
			i := e*s.digits + k
			elem.Digits[k] = Digit{Low: lows[i], High: highs[i], Cross: crosses[i]}
			digit := mod.Add(lows[i], mod.Mul(two, highs[i]))
			merged = mod.Add(merged, mod.Mul(weight, digit))
			weight = mod.Mul(weight, four)
		}
		elem.Merged = merged
		out[e] = elem
	}
	return statemachine.Final[*Message, []Shares](out), nil
}
