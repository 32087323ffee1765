package fpround

import (
	"math/bits"

	"github.com/shogo82148/int128"
)

// The conversion and divide front-ends below play the role the external
// exponent and special-case logic plays in the full pipeline, so the core
// is usable stand-alone. They accept and return packed encodings in a
// 64-bit container, which limits them to formats with fractions up to 52
// bits; the rounder itself has no such limit. NaNs and infinities are the
// caller's business throughout: operands are assumed finite.

// unpack splits a packed finite value and normalizes subnormals, returning
// the unbiased exponent and the significand in 1.FracWidth fixed point.
func unpack(b uint64, f FormatSpec) (sign bool, exp int32, m uint64, zero bool) {
	nf := uint(f.FracWidth)
	sign = b>>uint(f.ExpWidth+f.FracWidth)&1 != 0
	e := uint32(b>>nf) & f.MaxExp()
	frac := b & (1<<nf - 1)
	if e == 0 {
		if frac == 0 {
			return sign, 0, 0, true
		}
		// subnormal: shift the leading one into the integer slot
		l := bits.Len64(frac)
		m = frac << (int(nf) - l + 1)
		exp = int32(l) - int32(nf) - f.Bias
		return sign, exp, m, false
	}
	m = frac | 1<<nf
	exp = int32(e) - f.Bias
	return sign, exp, m, false
}

func pack(sign bool, exp uint32, frac uint64, f FormatSpec) uint64 {
	b := uint64(exp)<<uint(f.FracWidth) | frac&(1<<uint(f.FracWidth)-1)
	if sign {
		b |= 1 << uint(f.ExpWidth+f.FracWidth)
	}
	return b
}

// packOverflow returns the IEEE overflow result for the mode: infinity
// where the mode rounds away, the largest finite value where it cannot.
func packOverflow(f FormatSpec, mode RoundingMode, sign bool) uint64 {
	inf := uint64(f.MaxExp()) << uint(f.FracWidth)
	var mag uint64
	switch mode {
	case RTZ:
		mag = inf - 1
	case RDN:
		if sign {
			mag = inf
		} else {
			mag = inf - 1
		}
	case RUP:
		if sign {
			mag = inf - 1
		} else {
			mag = inf
		}
	default: // RNE, RMM
		mag = inf
	}
	if sign {
		mag |= 1 << uint(f.ExpWidth+f.FracWidth)
	}
	return mag
}

func (u *Unit) checkPackable(f FormatSpec) {
	if f.FracWidth > 52 {
		panic("fpround: format too wide for the packed 64-bit container")
	}
	u.viewFor(CvtToFloat, f.Sel)
}

// up128 widens a 1.nf significand into the shared 1.NFmax frame.
func (u *Unit) up128(m uint64, nf int) int128.Uint128 {
	return int128.Uint128{L: m}.Lsh(uint(u.nfMax - nf))
}

// CvtFloat converts the packed finite value b between two configured
// formats.
func (u *Unit) CvtFloat(b uint64, from, to FormatSpec, mode RoundingMode) uint64 {
	u.checkPackable(from)
	u.checkPackable(to)
	sign, e, m, zero := unpack(b, from)
	if zero {
		return pack(sign, 0, 0, to)
	}
	ce := e + to.Bias
	subnorm := ce <= 0

	w, uf := u.CvtShift(ShiftIn{
		Fmt:      to.Sel,
		Exp:      ce,
		Mantissa: u.up128(m, from.FracWidth),
		Subnorm:  subnorm,
	})
	res := u.Round(w,
		RoundingContext{Fmt: to.Sel, Mode: mode, Op: CvtToFloat, Sign: sign},
		ExpCandidates{Cvt: ce, CvtSubnorm: subnorm},
		StickyIn{CvtUf: uf})
	if res.FullExp >= to.MaxExp() {
		return packOverflow(to, mode, sign)
	}
	return pack(sign, res.FullExp, res.Frac.L, to)
}

// CvtInt converts the packed finite value b to a signed integer of the
// configured width, reporting inexactness. Magnitudes beyond the integer
// range are the caller's invalid-operation case.
func (u *Unit) CvtInt(b uint64, from FormatSpec, mode RoundingMode) (int64, bool) {
	u.checkPackable(from)
	sign, e, m, zero := unpack(b, from)
	if zero {
		return 0, false
	}
	w, _ := u.CvtShift(ShiftIn{
		ToInt:    true,
		Exp:      e + 1, // the left shift count
		Mantissa: u.up128(m, from.FracWidth),
	})
	res := u.Round(w,
		RoundingContext{Mode: mode, Op: CvtToInt, Sign: sign},
		ExpCandidates{}, StickyIn{})
	mag := res.Frac.L
	if res.Plus1 {
		mag++
	}
	inexact := res.Guard || res.Round || res.Sticky
	if sign {
		return -int64(mag), inexact
	}
	return int64(mag), inexact
}

// CvtFromInt converts a signed integer to the packed encoding of a
// configured format.
func (u *Unit) CvtFromInt(x int64, to FormatSpec, mode RoundingMode) uint64 {
	u.checkPackable(to)
	if x == 0 {
		return 0
	}
	sign := x < 0
	mag := uint64(x)
	if sign {
		mag = -mag
	}
	lzc := u.cfg.IntWidth - bits.Len64(mag)
	ce := int32(u.cfg.IntWidth-1-lzc) + to.Bias

	w, uf := u.CvtShift(ShiftIn{
		IntToFloat: true,
		Fmt:        to.Sel,
		Exp:        ce,
		Mantissa:   int128.Uint128{L: mag},
		LZC:        lzc,
	})
	res := u.Round(w,
		RoundingContext{Fmt: to.Sel, Mode: mode, Op: CvtToFloat, Sign: sign},
		ExpCandidates{Cvt: ce}, StickyIn{CvtUf: uf})
	if res.FullExp >= to.MaxExp() {
		return packOverflow(to, mode, sign)
	}
	return pack(sign, res.FullExp, res.Frac.L, to)
}

// runIter drives an iterator from the start pulse to a converged state.
func (u *Unit) runIter(in IterIn) IterState {
	it := u.NewIter(nil)
	in.Start, in.Busy = true, false
	it.Advance(in)
	in.Start, in.Busy = false, true
	for i := 0; i < u.Cycles(); i++ {
		it.Advance(in)
	}
	in.Busy = false
	return it.Advance(in)
}

// Div divides two packed finite values of format f.
func (u *Unit) Div(a, b uint64, f FormatSpec, mode RoundingMode) uint64 {
	u.checkPackable(f)
	sa, ea, ma, za := unpack(a, f)
	sb, eb, mb, zb := unpack(b, f)
	sign := sa != sb
	if za {
		return pack(sign, 0, 0, f) // 0/0 is the caller's NaN case
	}
	if zb {
		return pack(sign, f.MaxExp(), 0, f)
	}

	st := u.runIter(IterIn{
		Operand: u.up128(ma, f.FracWidth),
		Divisor: u.up128(mb, f.FracWidth),
	})
	wq, adj, sticky := u.DivSqrtResult(st)

	e := ea - eb + int32(adj) + f.Bias
	if e <= 0 {
		// denormalize; the shifted-out bits stay visible as sticky
		sticky = wq.ShiftRightSticky(1-int(e)) || sticky
		e = 0
	}
	res := u.Round(wq,
		RoundingContext{Fmt: f.Sel, Mode: mode, Op: DivSqrt, Sign: sign},
		ExpCandidates{Div: e}, StickyIn{Div: sticky})
	if res.FullExp >= f.MaxExp() {
		return packOverflow(f, mode, sign)
	}
	return pack(sign, res.FullExp, res.Frac.L, f)
}

// Sqrt computes the square root of the packed finite nonnegative value a.
func (u *Unit) Sqrt(a uint64, f FormatSpec, mode RoundingMode) uint64 {
	u.checkPackable(f)
	sign, e, m, zero := unpack(a, f)
	if zero {
		return a // ±0
	}

	op := u.up128(m, f.FracWidth)
	if e&1 != 0 {
		// odd exponent: double the radicand to [2,4) to keep it even
		op = op.Lsh(1)
		e--
	}
	st := u.runIter(IterIn{Operand: op, Sqrt: true})
	wq, adj, sticky := u.DivSqrtResult(st)

	ce := e/2 + int32(adj) + f.Bias
	res := u.Round(wq,
		RoundingContext{Fmt: f.Sel, Mode: mode, Op: DivSqrt, Sign: sign},
		ExpCandidates{Div: ce}, StickyIn{Div: sticky})
	return pack(sign, res.FullExp, res.Frac.L, f)
}
