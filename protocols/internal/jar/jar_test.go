package jar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primelattice/tessera/pkg/party"
)

func TestJarFillAndDrain(t *testing.T) {
	j := New[int](party.NewIDSlice([]party.ID{"alpha", "bravo"}))

	require.NoError(t, j.Put("bravo", 2))
	assert.False(t, j.Full())
	_, err := j.Ordered()
	assert.ErrorIs(t, err, ErrNotFull)

	require.NoError(t, j.Put("alpha", 1))
	assert.True(t, j.Full())

	items, err := j.Ordered()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, items)
}

func TestJarRejects(t *testing.T) {
	j := New[int](party.NewIDSlice([]party.ID{"alpha"}))
	assert.ErrorIs(t, j.Put("zulu", 1), ErrUnknownParty)
	require.NoError(t, j.Put("alpha", 1))
	assert.ErrorIs(t, j.Put("alpha", 2), ErrDuplicate)
}
