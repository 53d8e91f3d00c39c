// Package shamir implements Shamir secret sharing over the prime field from
// pkg/math/modular. Party x-coordinates are assigned from the position of the
// party in the sorted cluster member list, so every party derives the same
// assignment independently.
package shamir

import (
	"errors"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"

	"github.com/primelattice/tessera/pkg/math/modular"
	"github.com/primelattice/tessera/pkg/party"
)

var (
	// ErrThreshold is returned when the polynomial degree cannot be
	// supported by the cluster size.
	ErrThreshold = errors.New("shamir: threshold too large for cluster size")
	// ErrUnknownParty is returned when a share belongs to a party outside
	// the cluster.
	ErrUnknownParty = errors.New("shamir: share from unknown party")
	// ErrNoShares is returned when recovering from an empty share set.
	ErrNoShares = errors.New("shamir: no shares to recover from")
)

// Sharer shares and recovers secrets for a fixed cluster and threshold.
// The threshold t is the maximum number of corrupt parties: secrets are
// shared with degree-t polynomials, products of shares live on degree-2t
// polynomials, and recovery of those still needs 2t+1 ≤ n shares.
type Sharer struct {
	mod       *modular.Modulus
	parties   party.IDSlice
	threshold uint
}

// NewSharer validates the cluster shape and returns a Sharer.
func NewSharer(mod *modular.Modulus, parties party.IDSlice, threshold uint) (*Sharer, error) {
	if 2*threshold >= uint(parties.Len()) {
		return nil, ErrThreshold
	}
	return &Sharer{mod: mod, parties: parties, threshold: threshold}, nil
}

// Modulus returns the field the sharer operates in.
func (s *Sharer) Modulus() *modular.Modulus { return s.mod }

// Parties returns the cluster member list.
func (s *Sharer) Parties() party.IDSlice { return s.parties }

// Threshold returns t.
func (s *Sharer) Threshold() uint { return s.threshold }

// DegreeT returns the polynomial degree for fresh secrets.
func (s *Sharer) DegreeT() uint { return s.threshold }

// Degree2T returns the polynomial degree of share products.
func (s *Sharer) Degree2T() uint { return 2 * s.threshold }

// point returns the x-coordinate of the party at index i.
func point(i int) *saferith.Nat {
	return new(saferith.Nat).SetUint64(uint64(i) + 1)
}

// PartyPoint returns the x-coordinate assigned to id.
func (s *Sharer) PartyPoint(id party.ID) (*saferith.Nat, error) {
	i := s.parties.GetIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParty, id)
	}
	return point(i), nil
}

// Share splits secret into one share per cluster member using a random
// polynomial of the given degree.
func (s *Sharer) Share(secret *saferith.Nat, degree uint, rand io.Reader) (map[party.ID]*saferith.Nat, error) {
	if degree >= uint(s.parties.Len()) {
		return nil, ErrThreshold
	}
	coeffs := make([]*saferith.Nat, degree+1)
	coeffs[0] = s.mod.Mod(secret)
	for i := uint(1); i <= degree; i++ {
		c, err := s.mod.Random(rand)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	shares := make(map[party.ID]*saferith.Nat, s.parties.Len())
	for i, id := range s.parties {
		shares[id] = s.evaluate(coeffs, point(i))
	}
	return shares, nil
}

// evaluate computes the polynomial at x with Horner's rule.
func (s *Sharer) evaluate(coeffs []*saferith.Nat, x *saferith.Nat) *saferith.Nat {
	acc := new(saferith.Nat).SetUint64(0)
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc = s.mod.Add(s.mod.Mul(acc, x), coeffs[i])
	}
	return acc
}

// Recover interpolates the sharing polynomial at zero from the given shares.
// The caller must supply at least degree+1 shares of a consistent sharing;
// with fewer the result is meaningless, with unknown parties it errors.
func (s *Sharer) Recover(shares map[party.ID]*saferith.Nat) (*saferith.Nat, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}
	ids := make([]party.ID, 0, len(shares))
	for id := range shares {
		ids = append(ids, id)
	}
	holders := party.NewIDSlice(ids)

	secret := new(saferith.Nat).SetUint64(0)
	for _, id := range holders {
		xi, err := s.PartyPoint(id)
		if err != nil {
			return nil, err
		}
		num := new(saferith.Nat).SetUint64(1)
		den := new(saferith.Nat).SetUint64(1)
		for _, other := range holders {
			if other == id {
				continue
			}
			xj, err := s.PartyPoint(other)
			if err != nil {
				return nil, err
			}
			num = s.mod.Mul(num, xj)
			den = s.mod.Mul(den, s.mod.Sub(xj, xi))
		}
		denInv, err := s.mod.Inverse(den)
		if err != nil {
			return nil, err
		}
		lambda := s.mod.Mul(num, denInv)
		secret = s.mod.Add(secret, s.mod.Mul(lambda, shares[id]))
	}
	return secret, nil
}

// CombineContributions maps one contribution per cluster member (ordered as
// s.Parties()) through a Vandermonde matrix, extracting n-t fresh values. As
// long as at most t contributions are adversarial, every output stays
// uniformly random.
func (s *Sharer) CombineContributions(contributions []*saferith.Nat) ([]*saferith.Nat, error) {
	n := s.parties.Len()
	if len(contributions) != n {
		return nil, fmt.Errorf("shamir: expected %d contributions, got %d", n, len(contributions))
	}
	outCount := n - int(s.threshold)
	outputs := make([]*saferith.Nat, outCount)
	for k := 0; k < outCount; k++ {
		acc := new(saferith.Nat).SetUint64(0)
		for i := 0; i < n; i++ {
			e := new(saferith.Nat).SetUint64(uint64(k) + 1)
			weight := s.mod.Exp(point(i), e)
			acc = s.mod.Add(acc, s.mod.Mul(weight, contributions[i]))
		}
		outputs[k] = acc
	}
	return outputs, nil
}

// OutputsPerRun returns how many combined values one round of contributions
// yields, i.e. n - t.
func (s *Sharer) OutputsPerRun() int {
	return s.parties.Len() - int(s.threshold)
}
