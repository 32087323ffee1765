package fpround

import (
	"github.com/shogo82148/int128"
)

// RoundingContext selects the bit offsets and sticky contributions for one
// rounding operation.
type RoundingContext struct {
	Fmt  uint8 // output format selector; ignored for CvtToInt
	Mode RoundingMode
	Op   OpKind
	Sign bool // sign of the result
}

// ExpCandidates carries the per-operation exponent candidates computed by
// the external exponent logic. Each candidate is biased for the selected
// output format.
type ExpCandidates struct {
	Fma int32
	Div int32 // the divide/sqrt unbounded exponent
	Cvt int32

	// CvtSubnorm marks a conversion result predicted subnormal or
	// underflowed; the packed exponent field is then forced to zero so a
	// stale candidate cannot survive into a subnormal or zero encoding.
	CvtSubnorm bool
}

// StickyIn carries the operation-specific sticky precursors. Each one is
// folded in only for its own operation kind.
type StickyIn struct {
	Fma       bool // FMA addend sticky
	FmaExpOvf bool // FMA exponent overflow indicator
	CvtUf     bool // conversion underflow prediction
	Div       bool // divide/sqrt remainder sticky
}

// RoundedResult is the packed output of the rounder.
//
// For float results Frac and Exp are the fields of the selected format and
// FullExp widens Exp by one bit so the caller can see a rounding carry out
// of the exponent. For to-integer conversions Frac holds the unincremented
// integer field and the exponent fields are zero; the caller applies Plus1.
// Guard, Round, Sticky, Plus1 and UfPlus1 feed the external flag logic.
type RoundedResult struct {
	Frac    int128.Uint128
	Exp     uint32
	FullExp uint32

	Plus1   bool // increment applied by rounding
	UfPlus1 bool // increment under an idealized unbounded exponent
	Guard   bool
	Round   bool
	Sticky  bool
}

// roundUp evaluates the five-mode increment table from the result LSB, the
// guard bit and the OR of everything below it.
func roundUp(mode RoundingMode, negative, lsb, guard, roundSticky bool) bool {
	switch mode {
	case RNE:
		return guard && (roundSticky || lsb)
	case RTZ:
		return false
	case RDN:
		return negative
	case RUP:
		return !negative
	case RMM:
		return guard
	}
	panic("fpround: unknown rounding mode")
}

// Round consumes the wide significand and produces the correctly rounded,
// packed result for the selected format and operation kind.
func (u *Unit) Round(w *Wide, ctx RoundingContext, exps ExpCandidates, st StickyIn) RoundedResult {
	v := u.viewFor(ctx.Op, ctx.Fmt)

	guard := w.Bit(v.guard) != 0
	round := w.Bit(v.round) != 0
	sticky := w.AnyBelow(v.round)

	switch ctx.Op {
	case FMA:
		sticky = sticky || st.Fma || st.FmaExpOvf
	case DivSqrt:
		sticky = sticky || st.Div
	case CvtToInt, CvtToFloat:
		sticky = sticky || st.CvtUf
	default:
		panic("fpround: unknown operation kind")
	}

	lsb := w.Bit(v.fracLo) != 0
	inc := roundUp(ctx.Mode, ctx.Sign, lsb, guard, round || sticky)
	plus1 := inc && (guard || round || sticky)

	// The same table one rounding position down: what the increment would
	// be were the exponent unbounded. Only the underflow flag logic reads
	// it, so it is gated by inexactness below the guard bit alone.
	ufInc := roundUp(ctx.Mode, ctx.Sign, guard, round, sticky)
	ufPlus1 := ufInc && (round || sticky)

	res := RoundedResult{
		Plus1:   plus1,
		UfPlus1: ufPlus1,
		Guard:   guard,
		Round:   round,
		Sticky:  sticky,
	}

	if ctx.Op == CvtToInt {
		// Integer results bypass the exponent pack and the one-hot
		// increment; the conversion datapath applies Plus1 at the
		// integer's own LSB.
		res.Frac = w.Field(v.fracHi, v.fracLo)
		return res
	}

	var exp int32
	switch ctx.Op {
	case FMA:
		exp = exps.Fma
	case DivSqrt:
		exp = exps.Div
	case CvtToFloat:
		if !exps.CvtSubnorm && !st.CvtUf {
			exp = exps.Cvt
		}
	}

	// Pack {exponent, fraction} as one vector and add the increment at the
	// fraction LSB, so a rounding carry propagates into the exponent. The
	// extra exponent bit makes that carry visible to the caller.
	em := uint32(exp) & (1<<uint(u.ne+1) - 1)
	packed := int128.Uint128{L: uint64(em)}.Lsh(uint(v.nf))
	packed = packed.Add(w.Field(v.fracHi, v.fracLo))
	if plus1 {
		packed = packed.Add(int128.Uint128{L: 1})
	}

	res.FullExp = uint32(packed.Rsh(uint(v.nf)).L) & (1<<uint(u.ne+1) - 1)
	res.Exp = res.FullExp & (1<<uint(u.ne) - 1)
	res.Frac = mask128(packed, v.nf)
	return res
}
