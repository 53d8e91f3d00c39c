// Package runner executes protocol instances: one goroutine per instance
// drives a state machine against the cluster, from the init handshake
// through message exchange to the final result hook. Every suspension point
// is bounded by the configured timeout, and per-peer message order is
// preserved end to end.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/primelattice/tessera/pkg/cluster"
	"github.com/primelattice/tessera/pkg/party"
	"github.com/primelattice/tessera/pkg/statemachine"
	"github.com/primelattice/tessera/pkg/wire"
)

var (
	// ErrInitTimeout is returned when the init handshake does not finish
	// within the timeout.
	ErrInitTimeout = errors.New("runner: initialization timed out")
	// ErrSendTimeout is returned when a peer does not drain its stream
	// within the timeout.
	ErrSendTimeout = errors.New("runner: send timed out")
	// ErrRecvTimeout is returned when no message arrives within the
	// timeout while the protocol is unfinished.
	ErrRecvTimeout = errors.New("runner: receive timed out")
	// ErrStreamsClosed is returned when every peer stream closed before
	// the protocol finished.
	ErrStreamsClosed = errors.New("runner: all peer streams closed")
	// ErrStalled is returned when the instance has no peers left to hear
	// from and the protocol did not finish.
	ErrStalled = errors.New("runner: protocol stalled")
)

// Args configures one protocol instance.
type Args[M, R any] struct {
	// ID is the correlation id shared by all parties of the instance.
	ID uuid.UUID
	// Name is the protocol discriminator, used in logs and envelopes.
	Name string
	// Membership is the local party's view of the cluster.
	Membership *cluster.Membership
	// IO binds the instance to its transport.
	IO IO[M, R]
	// Timeout bounds every suspension point. Zero means
	// cluster.DefaultTimeout.
	Timeout time.Duration
	// Registry, when set, tracks the instance for stream routing.
	Registry *Registry
	// Logger is the base logger; instance fields are attached to it.
	Logger zerolog.Logger
}

// Spawn registers and starts one protocol instance, returning its handle.
// The caller then delivers the state machine (and the router delivers peer
// streams) through the handle; the instance goroutine takes it from there.
func Spawn[M, R any](ctx context.Context, args Args[M, R]) (*Handle[M, R], error) {
	if args.Timeout <= 0 {
		args.Timeout = cluster.DefaultTimeout
	}
	h := newHandle[M, R]()
	if args.Registry != nil {
		if err := args.Registry.Register(args.ID, h); err != nil {
			return nil, err
		}
	}
	// the digest names this execution across parties: same protocol, same
	// correlation id, same member list
	digest := wire.SessionDigest(args.Name, args.ID, args.Membership.AllParties())
	r := &runner[M, R]{
		args:   args,
		handle: h,
		log: args.Logger.With().
			Str("protocol", args.Name).
			Str("party", string(args.Membership.Self())).
			Str("correlation_id", args.ID.String()).
			Hex("session", digest[:]).
			Logger(),
	}
	go r.run(ctx)
	return h, nil
}

type runner[M, R any] struct {
	args     Args[M, R]
	handle   *Handle[M, R]
	log      zerolog.Logger
	machine  StateMachine[M, R]
	metadata []byte
	outbound map[party.ID]chan<- []byte
}

// inbound is one unit of the merged peer stream.
type inbound struct {
	from   party.ID
	data   []byte
	closed bool
}

func (r *runner[M, R]) run(ctx context.Context) {
	defer close(r.handle.done)
	if r.args.Registry != nil {
		defer r.args.Registry.Deregister(r.args.ID)
	}
	r.log.Debug().Msg("instance spawned")

	result, err := r.execute(ctx)
	if ctx.Err() != nil {
		// cancelled instances skip the final result hook
		r.log.Warn().AnErr("error", err).Msg("instance cancelled")
		return
	}
	if err != nil {
		r.log.Error().Err(err).Msg("instance failed")
	} else {
		r.log.Debug().Msg("instance finished")
	}

	hctx, cancel := context.WithTimeout(context.Background(), r.args.Timeout)
	defer cancel()
	var final R
	if result != nil {
		final = *result
	}
	if hookErr := r.args.IO.HandleFinalResult(hctx, r.args.ID, r.metadata, final, err); hookErr != nil {
		r.log.Error().Err(hookErr).Msg("final result hook failed")
	}
}

// execute drives the instance to its final result or first error.
func (r *runner[M, R]) execute(ctx context.Context) (*R, error) {
	// outbound streams open concurrently with the init handshake: a peer
	// accepting our stream may itself be blocked opening one to us
	openErr := make(chan error, 1)
	go func() { openErr <- r.openStreams(ctx) }()

	streams, err := r.waitInitialization(ctx, openErr)
	if err != nil {
		return nil, err
	}

	initial, err := r.machine.Initialize()
	if err != nil {
		return nil, fmt.Errorf("initializing state machine: %w", err)
	}
	result, err := r.dispatch(ctx, statemachine.Messages[M, R](nil, initial), false)
	if err != nil || result != nil {
		return result, err
	}
	return r.receiveLoop(ctx, streams)
}

// openStreams opens one outbound stream per peer, concurrently, each within
// the timeout.
func (r *runner[M, R]) openStreams(ctx context.Context) error {
	others := r.args.Membership.OtherParties()
	r.outbound = make(map[party.ID]chan<- []byte, others.Len())

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range others {
		peer := peer
		g.Go(func() error {
			octx, cancel := context.WithTimeout(gctx, r.args.Timeout)
			defer cancel()
			s, err := r.args.IO.OpenPartyStream(octx, peer, r.args.ID)
			if err != nil {
				return fmt.Errorf("opening stream to %s: %w", peer, err)
			}
			mu.Lock()
			r.outbound[peer] = s
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// waitInitialization collects the state machine, one inbound stream per
// peer, and the outcome of opening outbound streams, all within one timeout
// window. Unknown peers are rejected, duplicate streams replace the previous
// one.
func (r *runner[M, R]) waitInitialization(ctx context.Context, openErr <-chan error) (map[party.ID]<-chan []byte, error) {
	self := r.args.Membership.Self()
	others := r.args.Membership.OtherParties()
	streams := make(map[party.ID]<-chan []byte, others.Len())
	opened := false

	deadline := time.After(r.args.Timeout)
	for r.machine == nil || len(streams) < others.Len() || !opened {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w: machine=%t, streams=%d/%d",
				ErrInitTimeout, r.machine != nil, len(streams), others.Len())
		case err := <-openErr:
			if err != nil {
				return nil, err
			}
			opened = true
			openErr = nil
		case msg := <-r.handle.init:
			switch {
			case msg.party != nil:
				ps := msg.party
				if ps.Party == self || !r.args.Membership.IsMember(ps.Party) {
					r.log.Warn().Str("peer", string(ps.Party)).Msg("rejecting stream from unknown peer")
					continue
				}
				if _, ok := streams[ps.Party]; ok {
					r.log.Warn().Str("peer", string(ps.Party)).Msg("replacing duplicate peer stream")
				}
				streams[ps.Party] = ps.Stream
			case msg.machine != nil:
				if r.machine != nil {
					r.log.Warn().Msg("ignoring duplicate state machine")
					continue
				}
				r.machine = msg.machine.Machine
				r.metadata = msg.machine.Metadata
			}
		}
	}
	return streams, nil
}

// receiveLoop merges the peer streams, preserving per-peer order, and feeds
// the machine until it finishes.
func (r *runner[M, R]) receiveLoop(ctx context.Context, streams map[party.ID]<-chan []byte) (*R, error) {
	if len(streams) == 0 {
		// nobody left to hear from and the init yield did not finish
		return nil, ErrStalled
	}

	merged := make(chan inbound)
	stop := make(chan struct{})
	defer close(stop)
	for peer, s := range streams {
		go forwardStream(peer, s, merged, stop)
	}

	live := len(streams)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.args.Timeout):
			return nil, fmt.Errorf("%w: waiting in %s", ErrRecvTimeout, r.machine.StateName())
		case in := <-merged:
			if in.closed {
				r.log.Debug().Str("peer", string(in.from)).Msg("peer stream closed")
				if live--; live == 0 {
					return nil, ErrStreamsClosed
				}
				continue
			}
			msg, err := r.args.IO.DecodeMessage(in.data)
			if err != nil {
				return nil, fmt.Errorf("decoding message from %s: %w", in.from, err)
			}
			out, err := r.machine.Proceed(&statemachine.PartyMessage[M]{Sender: in.from, Message: msg})
			if err != nil {
				return nil, fmt.Errorf("message from %s: %w", in.from, err)
			}
			result, err := r.dispatch(ctx, out, true)
			if err != nil || result != nil {
				return result, err
			}
		}
	}
}

// forwardStream copies one peer stream into the merged channel, emitting a
// close marker when the peer hangs up.
func forwardStream(peer party.ID, s <-chan []byte, merged chan<- inbound, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case data, ok := <-s:
			if !ok {
				select {
				case merged <- inbound{from: peer, closed: true}:
				case <-stop:
				}
				return
			}
			select {
			case merged <- inbound{from: peer, data: data}:
			case <-stop:
				return
			}
		}
	}
}

// dispatch sends an output's messages and feeds self-addressed ones straight
// back into the machine, without touching the transport, until the yield
// settles. It returns the final result when the machine finishes.
func (r *runner[M, R]) dispatch(ctx context.Context, out statemachine.Output[M, R], logOOO bool) (*R, error) {
	var selfQueue []M
	if err := r.split(ctx, out.Messages(), &selfQueue); err != nil {
		return nil, err
	}
	if out.IsFinal() {
		result := out.Result()
		return &result, nil
	}
	if logOOO && out.IsOutOfOrder() {
		r.log.Debug().Msg("discarding out-of-order message")
	}

	for len(selfQueue) > 0 {
		msg := selfQueue[0]
		selfQueue = selfQueue[1:]
		next, err := r.machine.Proceed(&statemachine.PartyMessage[M]{
			Sender:  r.args.Membership.Self(),
			Message: msg,
		})
		if err != nil {
			return nil, fmt.Errorf("self message: %w", err)
		}
		if err := r.split(ctx, next.Messages(), &selfQueue); err != nil {
			return nil, err
		}
		if next.IsFinal() {
			result := next.Result()
			return &result, nil
		}
	}
	r.log.Debug().Str("state", r.machine.StateName()).Msg("waiting")
	return nil, nil
}

// split routes one batch of outgoing messages: self-addressed payloads are
// queued for direct redelivery and never serialized, remote payloads are
// encoded once and fanned out to every recipient's stream.
func (r *runner[M, R]) split(ctx context.Context, msgs []*statemachine.RecipientMessage[M], selfQueue *[]M) error {
	self := r.args.Membership.Self()
	for _, rm := range msgs {
		var encoded []byte
		for _, to := range rm.Recipient().Parties() {
			if to == self {
				*selfQueue = append(*selfQueue, rm.Message())
				continue
			}
			if encoded == nil {
				var err error
				encoded, err = r.args.IO.EncodeMessage(r.args.ID, rm.Message())
				if err != nil {
					return fmt.Errorf("encoding message: %w", err)
				}
			}
			stream, ok := r.outbound[to]
			if !ok {
				return fmt.Errorf("no stream for recipient %s", to)
			}
			select {
			case stream <- encoded:
			case <-time.After(r.args.Timeout):
				return fmt.Errorf("%w: to %s", ErrSendTimeout, to)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
