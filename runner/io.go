package runner

import (
	"context"

	"github.com/google/uuid"

	"github.com/primelattice/tessera/pkg/party"
)

// IO binds a protocol instance to its transport: opening per-peer streams,
// translating messages to and from wire bytes, and delivering the final
// result. Implementations typically build on cluster.Channels and pkg/wire.
type IO[M, R any] interface {
	// OpenPartyStream opens the outbound stream to peer for the instance
	// identified by correlationID. Bytes written to the returned channel
	// arrive at the peer in order.
	OpenPartyStream(ctx context.Context, peer party.ID, correlationID uuid.UUID) (chan<- []byte, error)

	// EncodeMessage serializes one protocol message for the wire. The
	// runner encodes each payload at most once, regardless of how many
	// peers receive it.
	EncodeMessage(correlationID uuid.UUID, msg M) ([]byte, error)

	// DecodeMessage parses wire bytes received from a peer stream.
	DecodeMessage(data []byte) (M, error)

	// HandleFinalResult consumes the instance outcome: the protocol
	// result on success, or the error that stopped the run. It is called
	// exactly once per instance, except when the instance was cancelled.
	HandleFinalResult(ctx context.Context, correlationID uuid.UUID, metadata []byte, result R, runErr error) error
}
