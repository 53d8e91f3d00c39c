package prepcompare

import (
	"github.com/cronokirby/saferith"

	"github.com/primelattice/tessera/pkg/statemachine"
	"github.com/primelattice/tessera/protocols/mult"
	"github.com/primelattice/tessera/protocols/prefixmult"
	"github.com/primelattice/tessera/protocols/randbitwise"
	"github.com/primelattice/tessera/protocols/randint"
	"github.com/primelattice/tessera/protocols/randquaternary"
)

// waitingBitwise runs the random bitwise generation.
type waitingBitwise struct {
	inst *instance
	sub  *statemachine.StateMachine[*randbitwise.Message, randbitwise.Result]
}

func (s *waitingBitwise) Name() string { return "WAITING_RAN_BITWISE" }

func (s *waitingBitwise) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	if msg.Message.Bitwise == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	return forward(s, s.sub, msg, msg.Message.Bitwise, NewBitwiseMessage, func(r randbitwise.Result) (statemachine.Output[*Message, Result], error) {
		var zero statemachine.Output[*Message, Result]
		if r.Aborted {
			return statemachine.Final[*Message, Result](Result{Abort: AbortRanBitwise}), nil
		}
		s.inst.bitwise = r.Shares
		sub, msgs, err := randquaternary.New(s.inst.sharer, s.inst.count, s.inst.mostBatch, s.inst.rand)
		if err != nil {
			return zero, err
		}
		next := &waitingQuaternary{inst: s.inst, sub: sub}
		return statemachine.Messages[*Message, Result](next, statemachine.WrapMessages(msgs, NewQuaternaryMessage)), nil
	})
}

// waitingQuaternary runs the random quaternary generation.
type waitingQuaternary struct {
	inst *instance
	sub  *statemachine.StateMachine[*randquaternary.Message, []randquaternary.Shares]
}

func (s *waitingQuaternary) Name() string { return "WAITING_RAN_QUATERNARY" }

func (s *waitingQuaternary) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	if msg.Message.Quaternary == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	return forward(s, s.sub, msg, msg.Message.Quaternary, NewQuaternaryMessage, func(r []randquaternary.Shares) (statemachine.Output[*Message, Result], error) {
		var zero statemachine.Output[*Message, Result]
		s.inst.quaternary = r
		operands := s.inst.leastBitOperands()
		sub, msgs, err := mult.New(s.inst.sharer, operands, s.inst.rand)
		if err != nil {
			return zero, err
		}
		next := &waitingLeastMult{inst: s.inst, sub: sub}
		return statemachine.Messages[*Message, Result](next, statemachine.WrapMessages(msgs, NewLeastBitMultMessage)), nil
	})
}

// waitingLeastMult runs the least-bit share multiplication.
type waitingLeastMult struct {
	inst *instance
	sub  *statemachine.StateMachine[*mult.Message, []*saferith.Nat]
}

func (s *waitingLeastMult) Name() string { return "WAITING_COMPARE_LEAST_BIT_MULT" }

func (s *waitingLeastMult) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	if msg.Message.LeastBitMult == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	return forward(s, s.sub, msg, msg.Message.LeastBitMult, NewLeastBitMultMessage, func(products []*saferith.Nat) (statemachine.Output[*Message, Result], error) {
		var zero statemachine.Output[*Message, Result]
		s.inst.least = products
		sub, msgs, err := mult.New(s.inst.sharer, s.inst.mostBitOperands(), s.inst.rand)
		if err != nil {
			return zero, err
		}
		next := &waitingMostMult{inst: s.inst, sub: sub}
		return statemachine.Messages[*Message, Result](next, statemachine.WrapMessages(msgs, NewMostBitMultMessage)), nil
	})
}

// waitingMostMult runs the most-bit share multiplication.
type waitingMostMult struct {
	inst *instance
	sub  *statemachine.StateMachine[*mult.Message, []*saferith.Nat]
}

func (s *waitingMostMult) Name() string { return "WAITING_COMPARE_MOST_BIT_MULT" }

func (s *waitingMostMult) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	if msg.Message.MostBitMult == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	return forward(s, s.sub, msg, msg.Message.MostBitMult, NewMostBitMultMessage, func(products []*saferith.Nat) (statemachine.Output[*Message, Result], error) {
		var zero statemachine.Output[*Message, Result]
		s.inst.most = products
		sub, msgs, err := prefixmult.New(s.inst.sharer, s.inst.count, s.inst.mostBatch, s.inst.rand)
		if err != nil {
			return zero, err
		}
		next := &waitingPrefixMult{inst: s.inst, sub: sub}
		return statemachine.Messages[*Message, Result](next, statemachine.WrapMessages(msgs, NewPrefixMultMessage)), nil
	})
}

// waitingPrefixMult runs the prefix multiplication preprocessing.
type waitingPrefixMult struct {
	inst *instance
	sub  *statemachine.StateMachine[*prefixmult.Message, prefixmult.Result]
}

func (s *waitingPrefixMult) Name() string { return "WAITING_PREFIX_MULT" }

func (s *waitingPrefixMult) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	if msg.Message.PrefixMult == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	return forward(s, s.sub, msg, msg.Message.PrefixMult, NewPrefixMultMessage, func(r prefixmult.Result) (statemachine.Output[*Message, Result], error) {
		var zero statemachine.Output[*Message, Result]
		if r.Aborted {
			return statemachine.Final[*Message, Result](Result{Abort: AbortInvRan}), nil
		}
		s.inst.prefix = r.Batches
		sub, msgs, err := randint.New(randint.ZerosOfDegree2T, s.inst.sharer, s.inst.count, s.inst.rand)
		if err != nil {
			return zero, err
		}
		next := &waitingZero{inst: s.inst, sub: sub}
		return statemachine.Messages[*Message, Result](next, statemachine.WrapMessages(msgs, NewRanZeroMessage)), nil
	})
}

// waitingZero runs the zero sharing and assembles the final records.
type waitingZero struct {
	inst *instance
	sub  *statemachine.StateMachine[*randint.Message, []*saferith.Nat]
}

func (s *waitingZero) Name() string { return "WAITING_RAN_ZERO" }

func (s *waitingZero) HandleMessage(msg *statemachine.PartyMessage[*Message]) (statemachine.Output[*Message, Result], error) {
	if msg.Message.RanZero == nil {
		return statemachine.OutOfOrder[*Message, Result](s, msg), nil
	}
	return forward(s, s.sub, msg, msg.Message.RanZero, NewRanZeroMessage, func(zeros []*saferith.Nat) (statemachine.Output[*Message, Result], error) {
		return statemachine.Final[*Message, Result](Result{Shares: s.inst.zip(zeros)}), nil
	})
}

// leastBitOperands pairs every odd bit share with the matching low digit
// share, element-major.
func (inst *instance) leastBitOperands() []mult.Operand {
	operands := make([]mult.Operand, 0, inst.count*inst.leastBatch)
	for e := 0; e < inst.count; e++ {
		for i := 0; i < inst.leastBatch; i++ {
			operands = append(operands, mult.Operand{
				Left:  inst.bitwise[e].Bits[2*i+1],
				Right: inst.quaternary[e].Digits[i].Low,
			})
		}
	}
	return operands
}

// mostBitOperands pairs every even bit share with the matching high digit
// share, element-major.
func (inst *instance) mostBitOperands() []mult.Operand {
	operands := make([]mult.Operand, 0, inst.count*inst.mostBatch)
	for e := 0; e < inst.count; e++ {
		for i := 0; i < inst.mostBatch; i++ {
			operands = append(operands, mult.Operand{
				Left:  inst.bitwise[e].Bits[2*i],
				Right: inst.quaternary[e].Digits[i].High,
			})
		}
	}
	return operands
}

// zip assembles one Shares record per element from the accumulated
// sub-protocol outputs.
func (inst *instance) zip(zeros []*saferith.Nat) []Shares {
	records := make([]Shares, inst.count)
	for e := 0; e < inst.count; e++ {
		records[e] = Shares{
			Bitwise:          inst.bitwise[e],
			Quaternary:       inst.quaternary[e],
			LeastBitProducts: inst.least[e*inst.leastBatch : (e+1)*inst.leastBatch],
			MostBitProducts:  inst.most[e*inst.mostBatch : (e+1)*inst.mostBatch],
			PrefixTuples:     inst.prefix[e],
			ZeroShare:        zeros[e],
		}
	}
	return records
}
