package prepcompare

import (
	"github.com/cronokirby/saferith"

	"github.com/primelattice/tessera/protocols/prefixmult"
	"github.com/primelattice/tessera/protocols/randbitwise"
	"github.com/primelattice/tessera/protocols/randquaternary"
)

// Abort names the sub-protocol that caused a run to stop early.
type Abort string

const (
	// AbortNone marks a successful run.
	AbortNone Abort = ""
	// AbortRanBitwise is raised when the random bitwise generation could
	// not certify its bits.
	AbortRanBitwise Abort = "RAN_BITWISE"
	// AbortInvRan is raised when the prefix multiplication preprocessing
	// hit a non-invertible mask.
	AbortInvRan Abort = "INV_RAN"
)

// Shares is the complete comparison preprocessing record for one element.
type Shares struct {
	// Bitwise holds the random bitwise value consumed by the comparison.
	Bitwise randbitwise.Shares
	// Quaternary holds the random quaternary value paired with it.
	Quaternary randquaternary.Shares
	// LeastBitProducts are the products of odd bit shares with low digit
	// shares, one per least-bit batch slot.
	LeastBitProducts []*saferith.Nat
	// MostBitProducts are the products of even bit shares with high digit
	// shares, one per most-bit batch slot.
	MostBitProducts []*saferith.Nat
	// PrefixTuples are the mask/domino tuples for the element's prefix
	// multiplication.
	PrefixTuples []prefixmult.Tuple
	// ZeroShare is the degree-2t zero share used to blind the final
	// opening.
	ZeroShare *saferith.Nat
}

// Result is the composite outcome: either one Shares record per requested
// element, or the abort that stopped the run.
type Result struct {
	Shares []Shares
	Abort  Abort
}

// Aborted reports whether the run stopped early.
func (r Result) Aborted() bool { return r.Abort != AbortNone }
