// Package cluster describes the set of parties a protocol instance runs
// over: static membership derived from configuration, and the channel
// abstraction the runner uses to reach peers.
package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/primelattice/tessera/pkg/party"
)

var (
	// ErrNotMember is returned when the local party is missing from the
	// configured member list.
	ErrNotMember = errors.New("cluster: local party is not a member")
	// ErrUnknownPeer is returned when opening a stream to a party outside
	// the cluster.
	ErrUnknownPeer = errors.New("cluster: unknown peer")
)

// Channels is the runner's view of the cluster: who the members are and how
// to open an outbound byte stream to one of them for a given protocol
// instance.
type Channels interface {
	// AllParties returns the sorted member list, including the local
	// party.
	AllParties() party.IDSlice
	// OtherParties returns the sorted member list without the local
	// party.
	OtherParties() party.IDSlice
	// IsMember reports whether id belongs to the cluster.
	IsMember(id party.ID) bool
	// OpenStream opens an outbound stream to peer scoped to the instance
	// identified by correlationID. Messages written to the returned
	// channel are delivered in order.
	OpenStream(ctx context.Context, peer party.ID, correlationID uuid.UUID) (chan<- []byte, error)
}

// Membership is the static member-list half of Channels, shared by every
// transport implementation.
type Membership struct {
	self   party.ID
	all    party.IDSlice
	others party.IDSlice
}

// NewMembership builds the membership view for self within members.
func NewMembership(self party.ID, members party.IDSlice) (*Membership, error) {
	if !members.Contains(self) {
		return nil, fmt.Errorf("%w: %s", ErrNotMember, self)
	}
	return &Membership{
		self:   self,
		all:    members.Copy(),
		others: members.Remove(self),
	}, nil
}

// Self returns the local party.
func (m *Membership) Self() party.ID { return m.self }

// AllParties returns the sorted member list, including the local party.
func (m *Membership) AllParties() party.IDSlice { return m.all }

// OtherParties returns the sorted member list without the local party.
func (m *Membership) OtherParties() party.IDSlice { return m.others }

// IsMember reports whether id belongs to the cluster.
func (m *Membership) IsMember(id party.ID) bool { return m.all.Contains(id) }
