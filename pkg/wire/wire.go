// Package wire defines the envelope that protocol payloads travel in between
// parties, plus the session digest that names a protocol execution.
package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/primelattice/tessera/pkg/party"
)

var (
	// ErrEmptyProtocol is returned for envelopes without a protocol
	// discriminator.
	ErrEmptyProtocol = errors.New("wire: empty protocol discriminator")
	// ErrProtocolMismatch is returned when an envelope carries a payload
	// for a different protocol than expected.
	ErrProtocolMismatch = errors.New("wire: protocol mismatch")
)

// Envelope frames one protocol payload on the wire. CorrelationID routes the
// payload to the right running instance, Protocol guards against feeding a
// payload into the wrong state machine.
type Envelope struct {
	CorrelationID uuid.UUID `cbor:"1,keyasint"`
	Protocol      string    `cbor:"2,keyasint"`
	Payload       []byte    `cbor:"3,keyasint"`
}

// Seal encodes payload with CBOR and wraps it in an envelope.
func Seal(id uuid.UUID, protocol string, payload interface{}) ([]byte, error) {
	if protocol == "" {
		return nil, ErrEmptyProtocol
	}
	raw, err := cbor.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding payload: %w", err)
	}
	data, err := cbor.Marshal(&Envelope{CorrelationID: id, Protocol: protocol, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("wire: encoding envelope: %w", err)
	}
	return data, nil
}

// OpenEnvelope decodes the envelope framing without touching the payload.
func OpenEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("wire: decoding envelope: %w", err)
	}
	if e.Protocol == "" {
		return nil, ErrEmptyProtocol
	}
	return &e, nil
}

// Open decodes an envelope, checks the protocol discriminator, and decodes
// the payload into out.
func Open(data []byte, protocol string, out interface{}) (uuid.UUID, error) {
	e, err := OpenEnvelope(data)
	if err != nil {
		return uuid.Nil, err
	}
	if e.Protocol != protocol {
		return uuid.Nil, fmt.Errorf("%w: got %q, want %q", ErrProtocolMismatch, e.Protocol, protocol)
	}
	if err := cbor.Unmarshal(e.Payload, out); err != nil {
		return uuid.Nil, fmt.Errorf("wire: decoding payload: %w", err)
	}
	return e.CorrelationID, nil
}

// SessionDigest derives a stable 32-byte identifier of a protocol execution
// from the protocol name, the correlation id and the sorted member list.
func SessionDigest(protocol string, id uuid.UUID, parties party.IDSlice) [32]byte {
	h := blake3.New()
	_, _ = h.Write([]byte(protocol))
	_, _ = h.Write(id[:])
	for _, p := range parties {
		_, _ = h.Write([]byte{0})
		_, _ = p.WriteTo(h)
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}
