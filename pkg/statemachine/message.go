package statemachine

import (
	"errors"

	"github.com/primelattice/tessera/pkg/party"
)

// ErrNoRecipients is returned when constructing a message for an empty
// recipient set.
var ErrNoRecipients = errors.New("statemachine: message has no recipients")

// Recipient is the destination of an outgoing message: either a single party
// or an explicit set of parties.
type Recipient struct {
	parties party.IDSlice
	single  bool
}

// Single addresses one party.
func Single(id party.ID) Recipient {
	return Recipient{parties: party.IDSlice{id}, single: true}
}

// Multiple addresses every party in ids. The slice is not copied.
func Multiple(ids party.IDSlice) Recipient {
	return Recipient{parties: ids}
}

// IsSingle reports whether the recipient is a single party.
func (r Recipient) IsSingle() bool { return r.single }

// Parties returns the recipient set.
func (r Recipient) Parties() party.IDSlice { return r.parties }

// RecipientMessage is an outgoing message paired with its destination.
type RecipientMessage[M any] struct {
	recipient Recipient
	message   M
}

// NewMessage builds an outgoing message for the given recipient.
func NewMessage[M any](recipient Recipient, message M) (*RecipientMessage[M], error) {
	if len(recipient.parties) == 0 {
		return nil, ErrNoRecipients
	}
	return &RecipientMessage[M]{recipient: recipient, message: message}, nil
}

// Recipient returns the destination of the message.
func (m *RecipientMessage[M]) Recipient() Recipient { return m.recipient }

// Message returns the payload.
func (m *RecipientMessage[M]) Message() M { return m.message }

// WrapMessage lifts a sub-protocol message into an enclosing message type,
// preserving the recipient.
func WrapMessage[M, N any](m *RecipientMessage[M], wrap func(M) N) *RecipientMessage[N] {
	return &RecipientMessage[N]{recipient: m.recipient, message: wrap(m.message)}
}

// WrapMessages applies WrapMessage to every element of msgs.
func WrapMessages[M, N any](msgs []*RecipientMessage[M], wrap func(M) N) []*RecipientMessage[N] {
	out := make([]*RecipientMessage[N], len(msgs))
	for i, m := range msgs {
		out[i] = WrapMessage(m, wrap)
	}
	return out
}

// PartyMessage is an incoming message paired with its sender.
type PartyMessage[M any] struct {
	Sender  party.ID
	Message M
}
