package wire

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primelattice/tessera/pkg/party"
)

type payload struct {
	Round int    `cbor:"1,keyasint"`
	Data  []byte `cbor:"2,keyasint"`
}

func TestSealOpenRoundTrip(t *testing.T) {
	id := uuid.New()
	in := payload{Round: 2, Data: []byte{1, 2, 3}}

	data, err := Seal(id, "PREP-COMPARE", in)
	require.NoError(t, err)

	var out payload
	gotID, err := Open(data, "PREP-COMPARE", &out)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, in, out)
}

func TestOpenRejectsWrongProtocol(t *testing.T) {
	data, err := Seal(uuid.New(), "PREP-COMPARE", payload{})
	require.NoError(t, err)
	var out payload
	_, err = Open(data, "MULT", &out)
	assert.ErrorIs(t, err, ErrProtocolMismatch)
}

func TestSealRejectsEmptyProtocol(t *testing.T) {
	_, err := Seal(uuid.New(), "", payload{})
	assert.ErrorIs(t, err, ErrEmptyProtocol)
}

func TestOpenEnvelopeRejectsGarbage(t *testing.T) {
	_, err := OpenEnvelope([]byte{0xff, 0x00, 0x01})
	assert.Error(t, err)
}

func TestSessionDigest(t *testing.T) {
	id := uuid.New()
	parties := party.NewIDSlice([]party.ID{"alpha", "bravo"})

	d1 := SessionDigest("PREP-COMPARE", id, parties)
	d2 := SessionDigest("PREP-COMPARE", id, parties)
	assert.Equal(t, d1, d2)

	d3 := SessionDigest("MULT", id, parties)
	assert.NotEqual(t, d1, d3)
	d4 := SessionDigest("PREP-COMPARE", id, party.NewIDSlice([]party.ID{"alpha", "charlie"}))
	assert.NotEqual(t, d1, d4)
}
