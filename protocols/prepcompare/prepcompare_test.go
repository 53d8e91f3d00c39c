package prepcompare

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
	"github.com/primelattice/tessera/protocols/prefixmult"
	"github.com/primelattice/tessera/protocols/randquaternary"
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

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// pump drives a single machine by self-delivering everything it emits in
// FIFO order, recording the waiting state after every delivery. transform,
// when non-nil, may replace a message before delivery.
func pump(t *testing.T, id party.ID, sm *statemachine.StateMachine[*Message, Result], msgs []*statemachine.RecipientMessage[*Message], transform func(*Message) *Message) (Result, []string) {
	t.Helper()
	var queue []*Message
	var visited []string
	enqueue := func(out []*statemachine.RecipientMessage[*Message]) {
		for _, rm := range out {
			require.True(t, rm.Recipient().Parties().Contains(id))
			queue = append(queue, rm.Message())
		}
	}
	enqueue(msgs)
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if transform != nil {
			m = transform(m)
		}
		out, err := sm.HandleMessage(&statemachine.PartyMessage[*Message]{Sender: id, Message: m})
		require.NoError(t, err)
		enqueue(out.Messages())
		if out.IsFinal() {
			return out.Result(), visited
		}
		visited = append(visited, sm.StateName())
	}
	t.Fatalf("machine stalled in %s", sm.StateName())
	return Result{}, nil
}

func TestSinglePartyEndToEnd(t *testing.T) {
	sharer := testSharer(t, []party.ID{"solo"}, 0)
	count := 2
	sm, msgs, err := New(sharer, count, rand.Reader)
	require.NoError(t, err)

	result, visited := pump(t, "solo", sm, msgs, nil)
	require.False(t, result.Aborted())
	require.Len(t, result.Shares, count)

	bits := int(sharer.Modulus().Bits())
	leastBatch := (bits - 1) / 2
	mostBatch := (bits + 1) / 2
	for _, rec := range result.Shares {
		assert.Len(t, rec.Bitwise.Bits, bits)
		assert.NotNil(t, rec.Bitwise.Merged)
		assert.Len(t, rec.Quaternary.Digits, mostBatch)
		assert.Len(t, rec.LeastBitProducts, leastBatch)
		assert.Len(t, rec.MostBitProducts, mostBatch)
		assert.Len(t, rec.PrefixTuples, mostBatch)
		assert.NotNil(t, rec.ZeroShare)
		// the zero share is a plain zero on a single-party cluster
		assert.True(t, sharer.Modulus().IsZero(rec.ZeroShare))
	}

	// the six waiting states are visited strictly in order, no revisits
	expected := []string{
		"WAITING_RAN_BITWISE",
		"WAITING_RAN_QUATERNARY",
		"WAITING_COMPARE_LEAST_BIT_MULT",
		"WAITING_COMPARE_MOST_BIT_MULT",
		"WAITING_PREFIX_MULT",
		"WAITING_RAN_ZERO",
	}
	var order []string
	for _, name := range visited {
		if len(order) == 0 || order[len(order)-1] != name {
			order = append(order, name)
		}
	}
	assert.Equal(t, expected, order)
	for i, name := range visited {
		if i > 0 {
			assert.LessOrEqual(t, indexOf(expected, visited[i-1]), indexOf(expected, name), "state revisited: %v", visited)
		}
	}
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestOutOfOrderIsolation(t *testing.T) {
	sharer := testSharer(t, []party.ID{"solo"}, 0)
	sm, msgs, err := NewWithPolicy(sharer, 1, rand.Reader, statemachine.DiscardOutOfOrder)
	require.NoError(t, err)

	// a stage-2 message during stage 1 comes back untouched and the
	// running stage is not disturbed
	early := &statemachine.PartyMessage[*Message]{
		Sender:  "solo",
		Message: NewQuaternaryMessage(&randquaternary.Message{}),
	}
	out, err := sm.HandleMessage(early)
	require.NoError(t, err)
	require.True(t, out.IsOutOfOrder())
	assert.Equal(t, early, out.OutOfOrderMessage())
	assert.Equal(t, "WAITING_RAN_BITWISE", sm.StateName())

	// the run still completes cleanly afterwards
	result, _ := pump(t, "solo", sm, msgs, nil)
	assert.False(t, result.Aborted())
}

func TestMultiPartyClusterAgrees(t *testing.T) {
	ids := []party.ID{"alpha", "bravo", "charlie"}
	sharer := testSharer(t, ids, 1)
	count := 1

	machines := make(map[party.ID]*statemachine.StateMachine[*Message, Result])
	initial := make(map[party.ID][]*statemachine.RecipientMessage[*Message])
	for _, id := range sharer.Parties() {
		sm, msgs, err := New(sharer, count, rand.Reader)
		require.NoError(t, err)
		machines[id] = sm
		initial[id] = msgs
	}
	results, err := test.Rounds(machines, initial, nil)
	require.NoError(t, err)
	require.Len(t, results, len(ids))

	// zero shares across the cluster must open to zero
	zeroShares := make(map[party.ID]*saferith.Nat)
	for id, r := range results {
		require.False(t, r.Aborted(), "party %s aborted", id)
		require.Len(t, r.Shares, count)
		zeroShares[id] = r.Shares[0].ZeroShare
	}
	opened, err := sharer.Recover(zeroShares)
	require.NoError(t, err)
	assert.True(t, sharer.Modulus().IsZero(opened))
}

func TestBitwiseAbortShortCircuits(t *testing.T) {
	ids := []party.ID{"alpha", "bravo", "charlie"}
	sharer := testSharer(t, ids, 1)

	machines := make(map[party.ID]*statemachine.StateMachine[*Message, Result])
	initial := make(map[party.ID][]*statemachine.RecipientMessage[*Message])
	for _, id := range sharer.Parties() {
		var entropy io.Reader = zeroReader{}
		sm, msgs, err := New(sharer, 1, entropy)
		require.NoError(t, err)
		machines[id] = sm
		initial[id] = msgs
	}
	results, err := test.Rounds(machines, initial, nil)
	require.NoError(t, err)
	for id, r := range results {
		assert.Equal(t, AbortRanBitwise, r.Abort, "party %s", id)
		assert.Nil(t, r.Shares)
	}
}

func TestInvRanAbortShortCircuits(t *testing.T) {
	sharer := testSharer(t, []party.ID{"solo"}, 0)
	mod := sharer.Modulus()
	sm, msgs, err := New(sharer, 1, rand.Reader)
	require.NoError(t, err)

	// sabotage the prefix-mult deal with zero masks: the check product
	// opens to zero and the composite reports the inverse abort
	zeroEnc := mod.Encode(new(saferith.Nat).SetUint64(0))
	result, _ := pump(t, "solo", sm, msgs, func(m *Message) *Message {
		if m.PrefixMult == nil || m.PrefixMult.Deal == nil {
			return m
		}
		slots := len(m.PrefixMult.Deal.Masks)
		zeros := make([][]byte, slots)
		for i := range zeros {
			zeros[i] = zeroEnc
		}
		return NewPrefixMultMessage(prefixmult.NewDealMessage(&prefixmult.DealMessage{
			Masks:    zeros,
			Inverses: zeros,
		}))
	})
	assert.Equal(t, AbortInvRan, result.Abort)
	assert.Nil(t, result.Shares)
}
