package randbitwise

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/cronokirby/saferith"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primelattice/tessera/internal/test"
	"github.com/primelattice/tessera/pkg/math/modular"
	"github.com/primelattice/tessera/pkg/party"
	"github.com/primelattice/tessera/pkg/shamir"
	"github.com/primelattice/tessera/pkg/statemachine"
)

const testPrime = 2147483783

func testSharer(t *testing.T, ids []party.ID, threshold uint) *shamir.Sharer {
	t.Helper()
	mod, err := modular.ModulusFromUint64(testPrime)
	require.NoError(t, err)
	s, err := shamir.NewSharer(mod, party.NewIDSlice(ids), threshold)
	require.NoError(t, err)
	return s
}

// zeroReader forces every sampled contribution to zero, which drives the
// verification value to zero and the protocol into its abort path.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func runCluster(t *testing.T, sharer *shamir.Sharer, count int, entropy func(party.ID) io.Reader) map[party.ID]Result {
	t.Helper()
	machines := make(map[party.ID]*statemachine.StateMachine[*Message, Result])
	initial := make(map[party.ID][]*statemachine.RecipientMessage[*Message])
	for _, id := range sharer.Parties() {
		sm, msgs, err := New(sharer, count, entropy(id))
		require.NoError(t, err)
		machines[id] = sm
		initial[id] = msgs
	}
	results, err := test.Rounds(machines, initial, nil)
	require.NoError(t, err)
	return results
}

func TestBitSharesOpenToBits(t *testing.T) {
	ids := []party.ID{"alpha", "bravo", "charlie"}
	sharer := testSharer(t, ids, 1)
	mod := sharer.Modulus()
	count := 2
	bits := int(mod.Bits())

	results := runCluster(t, sharer, count, func(party.ID) io.Reader { return rand.Reader })

	for e := 0; e < count; e++ {
		for k := 0; k < bits; k++ {
			shares := make(map[party.ID]*saferith.Nat)
			for id, r := range results {
				require.False(t, r.Aborted)
				require.Len(t, r.Shares, count)
				require.Len(t, r.Shares[e].Bits, bits)
				shares[id] = r.Shares[e].Bits[k]
			}
			// with three contributions each bit opens to a value in 0..3
			opened, err := sharer.Recover(shares)
			require.NoError(t, err)
			assert.Less(t, mod.Uint64(opened), uint64(4))
		}
	}
}

func TestMergedValueMatchesBits(t *testing.T) {
	sharer := testSharer(t, []party.ID{"solo"}, 0)
	mod := sharer.Modulus()

	results := runCluster(t, sharer, 1, func(party.ID) io.Reader { return rand.Reader })
	r := results["solo"]
	require.False(t, r.Aborted)

	// a single-party cluster holds plain values, so the merge is checkable
	merged := uint64(0)
	for k, b := range r.Shares[0].Bits {
		bit := mod.Uint64(b)
		require.Less(t, bit, uint64(2))
		merged += bit << uint(k)
	}
	assert.Equal(t, merged%testPrime, mod.Uint64(r.Shares[0].Merged))
}

func TestZeroVerificationValueAborts(t *testing.T) {
	sharer := testSharer(t, []party.ID{"alpha", "bravo", "charlie"}, 1)
	results := runCluster(t, sharer, 1, func(party.ID) io.Reader { return zeroReader{} })
	for id, r := range results {
		assert.True(t, r.Aborted, "party %s must abort", id)
		assert.Nil(t, r.Shares)
	}
}

func TestRevealBeforeDealIsOutOfOrder(t *testing.T) {
	sharer := testSharer(t, []party.ID{"alpha", "bravo", "charlie"}, 1)
	sm, _, err := New(sharer, 1, rand.Reader)
	require.NoError(t, err)

	early := &statemachine.PartyMessage[*Message]{
		Sender:  "bravo",
		Message: NewRevealMessage(&RevealMessage{Check: sharer.Modulus().Encode(new(saferith.Nat).SetUint64(1))}),
	}
	// with the buffering policy the early message is absorbed silently
	out, err := sm.HandleMessage(early)
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
	assert.Equal(t, "WAITING_DEAL", sm.StateName())
}

func TestNewRejectsBadCount(t *testing.T) {
	sharer := testSharer(t, []party.ID{"alpha", "bravo", "charlie"}, 1)
	_, _, err := New(sharer, 0, rand.Reader)
	assert.ErrorIs(t, err, ErrCount)
}
