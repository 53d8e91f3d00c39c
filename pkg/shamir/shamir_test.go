package shamir

import (
	"crypto/rand"
	"testing"

	"github.com/cronokirby/saferith"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primelattice/tessera/pkg/math/modular"
	"github.com/primelattice/tessera/pkg/party"
)

const testPrime = 2147483783

func testSharer(t *testing.T, ids []party.ID, threshold uint) *Sharer {
	t.Helper()
	mod, err := modular.ModulusFromUint64(testPrime)
	require.NoError(t, err)
	s, err := NewSharer(mod, party.NewIDSlice(ids), threshold)
	require.NoError(t, err)
	return s
}

func TestNewSharerRejectsTightClusters(t *testing.T) {
	mod, err := modular.ModulusFromUint64(testPrime)
	require.NoError(t, err)
	_, err = NewSharer(mod, party.NewIDSlice([]party.ID{"alpha", "bravo", "charlie"}), 2)
	assert.ErrorIs(t, err, ErrThreshold)
}

func TestShareRecoverRoundTrip(t *testing.T) {
	s := testSharer(t, []party.ID{"alpha", "bravo", "charlie", "delta"}, 1)
	secret := new(saferith.Nat).SetUint64(424242)

	shares, err := s.Share(secret, s.DegreeT(), rand.Reader)
	require.NoError(t, err)
	require.Len(t, shares, 4)

	recovered, err := s.Recover(shares)
	require.NoError(t, err)
	assert.EqualValues(t, 424242, s.Modulus().Uint64(recovered))
}

func TestRecoverFromSubset(t *testing.T) {
	s := testSharer(t, []party.ID{"alpha", "bravo", "charlie", "delta"}, 1)
	secret := new(saferith.Nat).SetUint64(7)

	shares, err := s.Share(secret, s.DegreeT(), rand.Reader)
	require.NoError(t, err)
	// t+1 = 2 shares suffice for a degree-t polynomial
	subset := map[party.ID]*saferith.Nat{
		"bravo": shares["bravo"],
		"delta": shares["delta"],
	}
	recovered, err := s.Recover(subset)
	require.NoError(t, err)
	assert.EqualValues(t, 7, s.Modulus().Uint64(recovered))
}

func TestRecoverDegree2TProduct(t *testing.T) {
	s := testSharer(t, []party.ID{"alpha", "bravo", "charlie", "delta", "echo"}, 1)
	mod := s.Modulus()
	left := new(saferith.Nat).SetUint64(1234)
	right := new(saferith.Nat).SetUint64(5678)

	leftShares, err := s.Share(left, s.DegreeT(), rand.Reader)
	require.NoError(t, err)
	rightShares, err := s.Share(right, s.DegreeT(), rand.Reader)
	require.NoError(t, err)

	// multiplying shares point-wise doubles the polynomial degree
	productShares := make(map[party.ID]*saferith.Nat, len(leftShares))
	for id, l := range leftShares {
		productShares[id] = mod.Mul(l, rightShares[id])
	}
	recovered, err := s.Recover(productShares)
	require.NoError(t, err)
	assert.EqualValues(t, mod.Uint64(mod.Mul(left, right)), mod.Uint64(recovered))
}

func TestRecoverErrors(t *testing.T) {
	s := testSharer(t, []party.ID{"alpha", "bravo", "charlie"}, 1)
	_, err := s.Recover(nil)
	assert.ErrorIs(t, err, ErrNoShares)
	_, err = s.Recover(map[party.ID]*saferith.Nat{"zulu": new(saferith.Nat).SetUint64(1)})
	assert.ErrorIs(t, err, ErrUnknownParty)
}

func TestCombineContributions(t *testing.T) {
	s := testSharer(t, []party.ID{"alpha", "bravo", "charlie"}, 1)
	contribs := []*saferith.Nat{
		new(saferith.Nat).SetUint64(10),
		new(saferith.Nat).SetUint64(20),
		new(saferith.Nat).SetUint64(30),
	}
	outputs, err := s.CombineContributions(contribs)
	require.NoError(t, err)
	require.Len(t, outputs, s.OutputsPerRun())
	// row k weights contribution i by (i+1)^(k+1)
	assert.EqualValues(t, 10*1+20*2+30*3, s.Modulus().Uint64(outputs[0]))
	assert.EqualValues(t, 10*1+20*4+30*9, s.Modulus().Uint64(outputs[1]))

	_, err = s.CombineContributions(contribs[:2])
	assert.Error(t, err)
}

func TestSinglePartyCluster(t *testing.T) {
	s := testSharer(t, []party.ID{"solo"}, 0)
	secret := new(saferith.Nat).SetUint64(99)
	shares, err := s.Share(secret, s.DegreeT(), rand.Reader)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	recovered, err := s.Recover(shares)
	require.NoError(t, err)
	assert.EqualValues(t, 99, s.Modulus().Uint64(recovered))
}
