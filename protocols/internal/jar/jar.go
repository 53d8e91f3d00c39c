// Package jar collects one item per cluster member, rejecting duplicates and
// strangers. Every waiting state that gathers contributions uses one.
package jar

import (
	"errors"
	"fmt"

	"github.com/primelattice/tessera/pkg/party"
)

var (
	// ErrUnknownParty is returned for senders outside the expected set.
	ErrUnknownParty = errors.New("jar: item from unknown party")
	// ErrDuplicate is returned when a party contributes twice.
	ErrDuplicate = errors.New("jar: duplicate item")
	// ErrNotFull is returned when draining a jar that is still missing
	// contributions.
	ErrNotFull = errors.New("jar: not all parties have contributed")
)

// Jar holds one item of type T per expected party.
type Jar[T any] struct {
	expected party.IDSlice
	items    map[party.ID]T
}

// New returns an empty jar expecting one item from each id in expected.
func New[T any](expected party.IDSlice) *Jar[T] {
	return &Jar[T]{
		expected: expected,
		items:    make(map[party.ID]T, expected.Len()),
	}
}

// Put stores the item contributed by from.
func (j *Jar[T]) Put(from party.ID, item T) error {
	if !j.expected.Contains(from) {
		return fmt.Errorf("%w: %s", ErrUnknownParty, from)
	}
	if _, ok := j.items[from]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, from)
	}
	j.items[from] = item
	return nil
}

// Full reports whether every expected party has contributed.
func (j *Jar[T]) Full() bool {
	return len(j.items) == j.expected.Len()
}

// Get returns the item contributed by id.
func (j *Jar[T]) Get(id party.ID) (T, bool) {
	item, ok := j.items[id]
	return item, ok
}

// Ordered returns the items in the order of the expected party list. It
// errors unless the jar is full.
func (j *Jar[T]) Ordered() ([]T, error) {
	if !j.Full() {
		return nil, ErrNotFull
	}
	out := make([]T, 0, j.expected.Len())
	for _, id := range j.expected {
		out = append(out, j.items[id])
	}
	return out, nil
}

// Map returns the collected items keyed by party. The map is shared, not
// copied.
func (j *Jar[T]) Map() map[party.ID]T {
	return j.items
}
