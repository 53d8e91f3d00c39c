package test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/primelattice/tessera/pkg/cluster"
	"github.com/primelattice/tessera/pkg/party"
	"github.com/primelattice/tessera/pkg/wire"
	"github.com/primelattice/tessera/runner"
)

// streamCapacity bounds each in-memory peer stream. Large enough that no
// honest protocol in this module fills it before the receiver drains.
const streamCapacity = 64

// Network is an in-memory cluster: every party joins once, and opening a
// stream to a peer routes the receive side to that peer's instance through
// its registry.
type Network struct {
	parties    party.IDSlice
	mu         sync.Mutex
	registries map[party.ID]*runner.Registry
}

// NewNetwork builds a network over parties.
func NewNetwork(parties party.IDSlice) *Network {
	return &Network{
		parties:    parties,
		registries: make(map[party.ID]*runner.Registry, parties.Len()),
	}
}

// Join adds the local party self to the network and returns its node.
func (n *Network) Join(self party.ID) (*Node, error) {
	membership, err := cluster.NewMembership(self, n.parties)
	if err != nil {
		return nil, err
	}
	registry := runner.NewRegistry()
	n.mu.Lock()
	n.registries[self] = registry
	n.mu.Unlock()
	return &Node{net: n, membership: membership, registry: registry}, nil
}

// route hands the receive side of a freshly opened stream to the peer's
// instance. The peer may not have spawned its instance yet, so unknown
// correlation ids are retried until the context expires.
func (n *Network) route(ctx context.Context, to party.ID, id uuid.UUID, ps runner.PartyStream) error {
	n.mu.Lock()
	registry := n.registries[to]
	n.mu.Unlock()
	if registry == nil {
		return cluster.ErrUnknownPeer
	}
	for {
		err := registry.Route(ctx, id, ps)
		if err == nil || !errors.Is(err, runner.ErrUnknownInstance) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Node is one party's attachment to the network. It implements
// cluster.Channels over in-memory streams.
type Node struct {
	net        *Network
	membership *cluster.Membership
	registry   *runner.Registry
}

var _ cluster.Channels = (*Node)(nil)

// Membership returns the node's cluster view.
func (nd *Node) Membership() *cluster.Membership { return nd.membership }

// Registry returns the node's instance registry.
func (nd *Node) Registry() *runner.Registry { return nd.registry }

// AllParties returns the sorted member list, including the local party.
func (nd *Node) AllParties() party.IDSlice { return nd.membership.AllParties() }

// OtherParties returns the sorted member list without the local party.
func (nd *Node) OtherParties() party.IDSlice { return nd.membership.OtherParties() }

// IsMember reports whether id belongs to the cluster.
func (nd *Node) IsMember(id party.ID) bool { return nd.membership.IsMember(id) }

// OpenStream opens an outbound stream to peer, handing the receive side to
// the peer's instance.
func (nd *Node) OpenStream(ctx context.Context, peer party.ID, correlationID uuid.UUID) (chan<- []byte, error) {
	if !nd.membership.IsMember(peer) {
		return nil, cluster.ErrUnknownPeer
	}
	stream := make(chan []byte, streamCapacity)
	ps := runner.PartyStream{Party: nd.membership.Self(), Stream: stream}
	if err := nd.net.route(ctx, peer, correlationID, ps); err != nil {
		return nil, err
	}
	return stream, nil
}

// Outcome records one final result delivery.
type Outcome[R any] struct {
	CorrelationID uuid.UUID
	Metadata      []byte
	Result        R
	Err           error
}

// IO implements runner.IO over a Node, sealing payloads into wire envelopes
// and collecting final results on a channel.
type IO[M, R any] struct {
	node     *Node
	protocol string
	outcomes chan Outcome[R]
}

// NewIO binds an instance transport for node under the given protocol
// discriminator.
func NewIO[M, R any](node *Node, protocol string) *IO[M, R] {
	return &IO[M, R]{
		node:     node,
		protocol: protocol,
		outcomes: make(chan Outcome[R], 1),
	}
}

// Outcomes returns the channel final results arrive on.
func (io *IO[M, R]) Outcomes() <-chan Outcome[R] { return io.outcomes }

func (io *IO[M, R]) OpenPartyStream(ctx context.Context, peer party.ID, correlationID uuid.UUID) (chan<- []byte, error) {
	return io.node.OpenStream(ctx, peer, correlationID)
}

func (io *IO[M, R]) EncodeMessage(correlationID uuid.UUID, msg M) ([]byte, error) {
	return wire.Seal(correlationID, io.protocol, msg)
}

func (io *IO[M, R]) DecodeMessage(data []byte) (M, error) {
	var msg M
	if _, err := wire.Open(data, io.protocol, &msg); err != nil {
		var zero M
		return zero, err
	}
	return msg, nil
}

func (io *IO[M, R]) HandleFinalResult(ctx context.Context, correlationID uuid.UUID, metadata []byte, result R, runErr error) error {
	select {
	case io.outcomes <- Outcome[R]{CorrelationID: correlationID, Metadata: metadata, Result: result, Err: runErr}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
