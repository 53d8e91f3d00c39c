// Package modular implements arithmetic over the prime field used by the
// protocols in this module. It wraps cronokirby/saferith so that field
// elements keep constant-time properties.
package modular

import (
	"errors"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"
)

var (
	// ErrNotOdd is returned when the modulus candidate is even.
	ErrNotOdd = errors.New("modular: modulus must be odd")
	// ErrTooSmall is returned when the modulus candidate is below 3.
	ErrTooSmall = errors.New("modular: modulus must be at least 3")
	// ErrOutOfRange is returned when decoding an element that is not
	// reduced modulo the prime.
	ErrOutOfRange = errors.New("modular: encoded element out of range")
	// ErrNotInvertible is returned when inverting an element with no
	// inverse, i.e. zero.
	ErrNotInvertible = errors.New("modular: element is not invertible")
)

// Modulus is an odd prime modulus together with the derived values needed for
// field arithmetic and wire encoding.
type Modulus struct {
	m       *saferith.Modulus
	nat     *saferith.Nat
	bits    uint
	byteLen int
}

// NewModulus validates p and returns the field modulus. p is not copied.
func NewModulus(p *saferith.Nat) (*Modulus, error) {
	if p.Byte(0)&1 == 0 {
		return nil, ErrNotOdd
	}
	three := new(saferith.Nat).SetUint64(3)
	if _, _, lt := p.Cmp(three); lt == 1 {
		return nil, ErrTooSmall
	}
	m := saferith.ModulusFromNat(p)
	bits := uint(m.BitLen())
	return &Modulus{
		m:       m,
		nat:     p,
		bits:    bits,
		byteLen: int(bits+7) / 8,
	}, nil
}

// ModulusFromUint64 is a convenience constructor, mostly for tests.
func ModulusFromUint64(p uint64) (*Modulus, error) {
	return NewModulus(new(saferith.Nat).SetUint64(p))
}

// ModulusFromBytes builds the modulus from a big-endian encoding.
func ModulusFromBytes(b []byte) (*Modulus, error) {
	return NewModulus(new(saferith.Nat).SetBytes(b))
}

// Bits returns the bit length of the modulus.
func (m *Modulus) Bits() uint { return m.bits }

// ByteLen returns the length of the fixed-size element encoding.
func (m *Modulus) ByteLen() int { return m.byteLen }

// Nat returns the modulus as a Nat. The returned value must not be modified.
func (m *Modulus) Nat() *saferith.Nat { return m.nat }

// Mod reduces x into the field.
func (m *Modulus) Mod(x *saferith.Nat) *saferith.Nat {
	return new(saferith.Nat).Mod(x, m.m)
}

// Add returns a + b (mod p).
func (m *Modulus) Add(a, b *saferith.Nat) *saferith.Nat {
	return new(saferith.Nat).ModAdd(a, b, m.m)
}

// Sub returns a - b (mod p).
func (m *Modulus) Sub(a, b *saferith.Nat) *saferith.Nat {
	return new(saferith.Nat).ModSub(a, b, m.m)
}

// Mul returns a ⋅ b (mod p).
func (m *Modulus) Mul(a, b *saferith.Nat) *saferith.Nat {
	return new(saferith.Nat).ModMul(a, b, m.m)
}

// Neg returns -x (mod p).
func (m *Modulus) Neg(x *saferith.Nat) *saferith.Nat {
	return new(saferith.Nat).ModNeg(x, m.m)
}

// Exp returns xᵉ (mod p).
func (m *Modulus) Exp(x, e *saferith.Nat) *saferith.Nat {
	return new(saferith.Nat).Exp(x, e, m.m)
}

// Inverse returns x⁻¹ (mod p), or ErrNotInvertible for zero.
func (m *Modulus) Inverse(x *saferith.Nat) (*saferith.Nat, error) {
	if x.EqZero() == 1 {
		return nil, ErrNotInvertible
	}
	return new(saferith.Nat).ModInverse(x, m.m), nil
}

// IsZero reports whether x ≡ 0 (mod p).
func (m *Modulus) IsZero(x *saferith.Nat) bool {
	return m.Mod(x).EqZero() == 1
}

// Random samples a uniform field element from rand.
func (m *Modulus) Random(rand io.Reader) (*saferith.Nat, error) {
	// oversample to keep the modular bias negligible
	buf := make([]byte, m.byteLen+16)
	if _, err := io.ReadFull(rand, buf); err != nil {
		return nil, fmt.Errorf("modular: sampling field element: %w", err)
	}
	return m.Mod(new(saferith.Nat).SetBytes(buf)), nil
}

// RandomNonZero samples a uniform non-zero field element from rand.
func (m *Modulus) RandomNonZero(rand io.Reader) (*saferith.Nat, error) {
	for {
		x, err := m.Random(rand)
		if err != nil {
			return nil, err
		}
		if x.EqZero() != 1 {
			return x, nil
		}
	}
}

// Encode serializes a reduced element into a fixed-length big-endian form.
func (m *Modulus) Encode(x *saferith.Nat) []byte {
	buf := make([]byte, m.byteLen)
	m.Mod(x).FillBytes(buf)
	return buf
}

// Decode parses an element previously produced by Encode, rejecting values
// outside the field.
func (m *Modulus) Decode(b []byte) (*saferith.Nat, error) {
	if len(b) > m.byteLen {
		return nil, ErrOutOfRange
	}
	x := new(saferith.Nat).SetBytes(b)
	if _, _, lt := x.Cmp(m.nat); lt != 1 {
		return nil, ErrOutOfRange
	}
	return x, nil
}

// Uint64 collapses x to a uint64, for tests and logs on small fields.
func (m *Modulus) Uint64(x *saferith.Nat) uint64 {
	return m.Mod(x).Big().Uint64()
}
