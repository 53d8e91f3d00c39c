package test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primelattice/tessera/pkg/cluster"
	"github.com/primelattice/tessera/pkg/party"
	"github.com/primelattice/tessera/runner"
)

func TestNodeImplementsChannels(t *testing.T) {
	parties := party.IDSlice{"alpha", "bravo"}
	net := NewNetwork(parties)
	node, err := net.Join("alpha")
	require.NoError(t, err)

	var ch cluster.Channels = node
	assert.Equal(t, parties, ch.AllParties())
	assert.Equal(t, party.IDSlice{"bravo"}, ch.OtherParties())
	assert.True(t, ch.IsMember("bravo"))
	assert.False(t, ch.IsMember("mallory"))
}

func TestOpenStreamRejectsUnknownPeer(t *testing.T) {
	net := NewNetwork(party.IDSlice{"alpha", "bravo"})
	node, err := net.Join("alpha")
	require.NoError(t, err)

	_, err = node.OpenStream(context.Background(), "mallory", uuid.New())
	assert.ErrorIs(t, err, cluster.ErrUnknownPeer)
}

func TestOpenStreamReachesPeerInstance(t *testing.T) {
	net := NewNetwork(party.IDSlice{"alpha", "bravo"})
	alpha, err := net.Join("alpha")
	require.NoError(t, err)
	bravo, err := net.Join("bravo")
	require.NoError(t, err)

	id := uuid.New()
	inst := &captureInstance{streams: make(chan runner.PartyStream, 1)}
	require.NoError(t, bravo.Registry().Register(id, inst))
	defer bravo.Registry().Deregister(id)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stream, err := alpha.OpenStream(ctx, "bravo", id)
	require.NoError(t, err)

	delivered := <-inst.streams
	assert.Equal(t, party.ID("alpha"), delivered.Party)

	stream <- []byte("ping")
	assert.Equal(t, []byte("ping"), <-delivered.Stream)
}

type captureInstance struct {
	streams chan runner.PartyStream
}

func (c *captureInstance) DeliverPartyStream(_ context.Context, ps runner.PartyStream) error {
	c.streams <- ps
	return nil
}

func (c *captureInstance) Done() <-chan struct{} { return make(chan struct{}) }
