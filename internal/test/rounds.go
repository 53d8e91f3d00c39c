// Package test contains in-memory helpers for driving multi-party protocols
// inside unit tests: a synchronous message pump for state machines and a
// channel-based cluster network for the runner.
package test

import (
	"errors"
	"fmt"
	mrand "math/rand"

	"github.com/primelattice/tessera/pkg/party"
	"github.com/primelattice/tessera/pkg/statemachine"
)

// ErrStalled is returned when no machine can make progress but some have not
// finished.
var ErrStalled = errors.New("test: machines stalled before finishing")

type link struct {
	from, to party.ID
}

// Rounds drives every machine to completion by delivering all produced
// messages in-memory. Message order between different sender/recipient pairs
// is permuted with rng when non-nil, while order within each pair is always
// preserved. It returns the final result of every party.
func Rounds[M, R any](
	machines map[party.ID]*statemachine.StateMachine[M, R],
	initial map[party.ID][]*statemachine.RecipientMessage[M],
	rng *mrand.Rand,
) (map[party.ID]R, error) {
	queues := make(map[link][]*statemachine.PartyMessage[M])
	var order []link

	enqueue := func(from party.ID, msgs []*statemachine.RecipientMessage[M]) {
		for _, rm := range msgs {
			for _, to := range rm.Recipient().Parties() {
				l := link{from: from, to: to}
				if len(queues[l]) == 0 {
					order = append(order, l)
				}
				queues[l] = append(queues[l], &statemachine.PartyMessage[M]{Sender: from, Message: rm.Message()})
			}
		}
	}

	for id, msgs := range initial {
		enqueue(id, msgs)
	}

	results := make(map[party.ID]R, len(machines))
	for len(order) > 0 {
		idx := 0
		if rng != nil {
			idx = rng.Intn(len(order))
		}
		l := order[idx]
		q := queues[l]
		msg := q[0]
		if len(q) == 1 {
			delete(queues, l)
			order = append(order[:idx], order[idx+1:]...)
		} else {
			queues[l] = q[1:]
		}

		sm, ok := machines[l.to]
		if !ok {
			return nil, fmt.Errorf("test: message for unknown party %s", l.to)
		}
		if sm.Finished() {
			// stragglers after the final result are dropped
			continue
		}
		out, err := sm.HandleMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("test: party %s: %w", l.to, err)
		}
		enqueue(l.to, out.Messages())
		if out.IsFinal() {
			results[l.to] = out.Result()
		}
	}

	for id, sm := range machines {
		if !sm.Finished() {
			return nil, fmt.Errorf("%w: party %s stuck in %s", ErrStalled, id, sm.StateName())
		}
	}
	return results, nil
}
