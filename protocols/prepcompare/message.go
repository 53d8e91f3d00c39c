package prepcompare

import (
	"github.com/primelattice/tessera/protocols/mult"
	"github.com/primelattice/tessera/protocols/prefixmult"
	"github.com/primelattice/tessera/protocols/randbitwise"
	"github.com/primelattice/tessera/protocols/randint"
	"github.com/primelattice/tessera/protocols/randquaternary"
)

// Message multiplexes the sub-protocol messages of the composite: exactly
// one field is set. The two multiplication stages use the same underlying
// protocol but are distinct sub-machines, so they get distinct fields.
type Message struct {
	Bitwise      *randbitwise.Message    `cbor:"1,keyasint,omitempty"`
	Quaternary   *randquaternary.Message `cbor:"2,keyasint,omitempty"`
	LeastBitMult *mult.Message           `cbor:"3,keyasint,omitempty"`
	MostBitMult  *mult.Message           `cbor:"4,keyasint,omitempty"`
	PrefixMult   *prefixmult.Message     `cbor:"5,keyasint,omitempty"`
	RanZero      *randint.Message        `cbor:"6,keyasint,omitempty"`
}

// NewBitwiseMessage wraps a random-bitwise message.
func NewBitwiseMessage(m *randbitwise.Message) *Message { return &Message{Bitwise: m} }

// NewQuaternaryMessage wraps a random-quaternary message.
func NewQuaternaryMessage(m *randquaternary.Message) *Message { return &Message{Quaternary: m} }

// NewLeastBitMultMessage wraps a message of the least-bit multiplication.
func NewLeastBitMultMessage(m *mult.Message) *Message { return &Message{LeastBitMult: m} }

// NewMostBitMultMessage wraps a message of the most-bit multiplication.
func NewMostBitMultMessage(m *mult.Message) *Message { return &Message{MostBitMult: m} }

// NewPrefixMultMessage wraps a prefix-multiplication message.
func NewPrefixMultMessage(m *prefixmult.Message) *Message { return &Message{PrefixMult: m} }

// NewRanZeroMessage wraps a zero-sharing message.
func NewRanZeroMessage(m *randint.Message) *Message { return &Message{RanZero: m} }
