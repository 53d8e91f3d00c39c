package party

import (
	"errors"
	"io"
)

// ErrInvalidID is returned when an empty string is used where a party
// identifier is expected.
var ErrInvalidID = errors.New("party: invalid ID")

// ID identifies a participant of the cluster. IDs are opaque strings and are
// compared byte-wise.
type ID string

// Valid reports whether the ID is usable as a cluster member identifier.
func (id ID) Valid() bool {
	return len(id) > 0
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// WriteTo implements io.WriterTo, writing the raw bytes of the ID.
// It is used when deriving session digests.
func (id ID) WriteTo(w io.Writer) (int64, error) {
	if !id.Valid() {
		return 0, ErrInvalidID
	}
	n, err := w.Write([]byte(id))
	return int64(n), err
}
