package modular

import (
	"crypto/rand"
	"testing"

	"github.com/cronokirby/saferith"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPrime is a small safe prime, large enough to exercise multi-byte
// encodings.
const testPrime = 2147483783

func testModulus(t *testing.T) *Modulus {
	t.Helper()
	m, err := ModulusFromUint64(testPrime)
	require.NoError(t, err)
	return m
}

func TestNewModulusRejectsBadCandidates(t *testing.T) {
	_, err := ModulusFromUint64(10)
	assert.ErrorIs(t, err, ErrNotOdd)
	_, err = ModulusFromUint64(1)
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestArithmetic(t *testing.T) {
	m := testModulus(t)
	a := new(saferith.Nat).SetUint64(testPrime - 1)
	b := new(saferith.Nat).SetUint64(2)

	assert.EqualValues(t, 1, m.Uint64(m.Add(a, b)))
	assert.EqualValues(t, testPrime-3, m.Uint64(m.Sub(a, b)))
	assert.EqualValues(t, testPrime-2, m.Uint64(m.Mul(a, b)))
	assert.EqualValues(t, 1, m.Uint64(m.Neg(a)))
}

func TestInverse(t *testing.T) {
	m := testModulus(t)
	x := new(saferith.Nat).SetUint64(123456789)
	inv, err := m.Inverse(x)
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.Uint64(m.Mul(x, inv)))

	_, err = m.Inverse(new(saferith.Nat).SetUint64(0))
	assert.ErrorIs(t, err, ErrNotInvertible)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := testModulus(t)
	for i := 0; i < 32; i++ {
		x, err := m.Random(rand.Reader)
		require.NoError(t, err)
		enc := m.Encode(x)
		assert.Len(t, enc, m.ByteLen())
		back, err := m.Decode(enc)
		require.NoError(t, err)
		assert.EqualValues(t, 1, back.Eq(x))
	}
}

func TestDecodeRejectsOutOfRange(t *testing.T) {
	m := testModulus(t)
	_, err := m.Decode(m.nat.Bytes())
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = m.Decode(make([]byte, m.ByteLen()+1))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRandomNonZero(t *testing.T) {
	m, err := ModulusFromUint64(3)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		x, err := m.RandomNonZero(rand.Reader)
		require.NoError(t, err)
		assert.False(t, m.IsZero(x))
	}
}
