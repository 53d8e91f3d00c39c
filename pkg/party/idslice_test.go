package party

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDSliceSortsAndDeduplicates(t *testing.T) {
	ids := NewIDSlice([]ID{"charlie", "alpha", "bravo", "alpha"})
	require.Equal(t, IDSlice{"alpha", "bravo", "charlie"}, ids)
}

func TestIDSliceSearch(t *testing.T) {
	ids := NewIDSlice([]ID{"alpha", "bravo", "charlie"})
	assert.True(t, ids.Contains("bravo"))
	assert.False(t, ids.Contains("delta"))
	assert.Equal(t, 0, ids.GetIndex("alpha"))
	assert.Equal(t, 2, ids.GetIndex("charlie"))
	assert.Equal(t, -1, ids.GetIndex("delta"))
}

func TestIDSliceRemove(t *testing.T) {
	ids := NewIDSlice([]ID{"alpha", "bravo", "charlie"})
	others := ids.Remove("bravo")
	assert.Equal(t, IDSlice{"alpha", "charlie"}, others)
	// the original is untouched
	assert.Equal(t, IDSlice{"alpha", "bravo", "charlie"}, ids)
}

func TestIDValid(t *testing.T) {
	assert.False(t, ID("").Valid())
	assert.True(t, ID("alpha").Valid())
}
