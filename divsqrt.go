package fpround

import (
	"github.com/shogo82148/int128"
)

// DigitSelector picks the next signed digit of a division or square-root
// recurrence. It sees what a hardware selection table sees: the carry-save
// partial remainder after the radix multiply, and the subtrahend the
// recurrence would apply for each candidate digit, ordered from -radix/2 to
// radix/2 (for division these are the divisor multiples, including the
// negated and, at radix 4, doubled forms; for square root the terms built
// from the running root). All values are two's complement in the divider's
// fixed-point frame.
type DigitSelector interface {
	Select(ws, wc int128.Uint128, subs []int128.Uint128) int
}

// ExactSelector assimilates the carry-save pair and picks the digit
// leaving the smallest residue, breaking ties toward the larger digit.
// It stands in for a redundant-estimate selection table.
type ExactSelector struct{}

func (ExactSelector) Select(ws, wc int128.Uint128, subs []int128.Uint128) int {
	w := ws.Add(wc)
	best := 0
	bestAbs := abs128(w.Sub(subs[0]))
	for i := 1; i < len(subs); i++ {
		if a := abs128(w.Sub(subs[i])); a.Cmp(bestAbs) <= 0 {
			best, bestAbs = i, a
		}
	}
	return best - len(subs)/2
}

// Iter is the digit-recurrence iterator for one divide or square-root
// instance. It advances the computation by DigitsPerCycle digits per
// clock; all mutable state of the core lives here.
//
// The partial remainder (ws, wc) is a carry-save pair in a 4.DIVb
// fixed-point frame. q and qm are the on-the-fly conversion accumulators:
// the running quotient or root and its decremented twin, 1.DIVb fixed
// point (with headroom for a transient above-range leading digit). c marks
// the current digit weight; it starts at a radix-dependent value and
// shifts right by log2(radix) every digit, so the square-root stage can
// also read the square-term weight from it. When c runs out the digit
// frame is exhausted and further stages hold.
type Iter struct {
	u   *Unit
	sel DigitSelector

	ws, wc int128.Uint128
	q, qm  int128.Uint128
	c      int128.Uint128
}

// NewIter returns an idle iterator. A nil selector gets ExactSelector.
func (u *Unit) NewIter(sel DigitSelector) *Iter {
	if sel == nil {
		sel = ExactSelector{}
	}
	return &Iter{u: u, sel: sel}
}

// IterIn carries one clock cycle's inputs. Operand is the dividend or
// radicand in 2.NFmax fixed point (radicands span [1,4) after the even
// exponent adjustment), Divisor the divisor in 1.NFmax fixed point.
type IterIn struct {
	Start   bool
	Busy    bool
	Operand int128.Uint128
	Divisor int128.Uint128
	Sqrt    bool
}

// IterState is the register state at the start of a cycle.
type IterState struct {
	WS, WC int128.Uint128
	Q, QM  int128.Uint128
	C      int128.Uint128
}

// Advance models one clock edge. It returns the first-of-cycle state, the
// values a downstream stage sees this cycle, and then loads on a start
// pulse, runs DigitsPerCycle recurrence stages while busy, or holds.
// A start pulse reloads unconditionally: discarding an unfinished
// operation is the external controller's decision to make.
func (it *Iter) Advance(in IterIn) IterState {
	out := IterState{WS: it.ws, WC: it.wc, Q: it.q, QM: it.qm, C: it.c}
	switch {
	case in.Start:
		w0 := in.Operand.Lsh(uint(it.u.divBits - it.u.nfMax))
		if !in.Sqrt {
			// the division recurrence starts from dividend/radix
			w0 = w0.Rsh(uint(it.u.log2r))
		}
		it.ws = w0
		it.wc = int128.Uint128{}
		it.q = int128.Uint128{}
		it.qm = ones128(it.u.divBits + 1)
		it.c = int128.Uint128{L: 1}.Lsh(uint(it.u.divBits + it.u.log2r))
	case in.Busy:
		for i := 0; i < it.u.cfg.DigitsPerCycle; i++ {
			it.step(in)
		}
	}
	return out
}

func (it *Iter) step(in IterIn) {
	if it.c == (int128.Uint128{}) {
		return
	}
	lr := uint(it.u.log2r)
	r := it.u.cfg.Radix
	maxd := r / 2

	ws := it.ws.Lsh(lr)
	wc := it.wc.Lsh(lr)

	var subs [5]int128.Uint128
	n := 2*maxd + 1
	for i := 0; i < n; i++ {
		d := i - maxd
		if in.Sqrt {
			s := it.q.Lsh(1 + lr)
			subs[i] = mulDigit(s, d).Add(mulDigit(it.c, d*d))
		} else {
			dv := in.Divisor.Lsh(uint(it.u.divBits - it.u.nfMax))
			subs[i] = mulDigit(dv, d)
		}
	}

	d := it.sel.Select(ws, wc, subs[:n])
	if d < -maxd || d > maxd {
		panic("fpround: digit out of range")
	}

	// A software stage resolves the carry-save pair; a redundant selector
	// is free to keep it split across the two vectors.
	it.ws = ws.Add(wc).Sub(subs[d+maxd])
	it.wc = int128.Uint128{}

	// On-the-fly conversion: append the digit to q and qm without a
	// carry-propagating correction pass.
	uw := it.c.Rsh(lr)
	switch {
	case d > 0:
		q := it.q
		it.q = q.Add(mulDigit(uw, d))
		it.qm = q.Add(mulDigit(uw, d-1))
	case d == 0:
		it.qm = it.qm.Add(mulDigit(uw, r-1))
	default:
		qm := it.qm
		it.q = qm.Add(mulDigit(uw, r+d))
		it.qm = qm.Add(mulDigit(uw, r+d-1))
	}
	it.q = mask128(it.q, it.u.divBits+3)
	it.qm = mask128(it.qm, it.u.divBits+3)
	it.c = it.c.Rsh(lr)
}

// Cycles returns the number of busy cycles needed to generate the full
// digit frame for one divide or square root.
func (u *Unit) Cycles() int {
	steps := u.divBits/u.log2r + 1
	return (steps + u.cfg.DigitsPerCycle - 1) / u.cfg.DigitsPerCycle
}

// DivSqrtResult folds a converged first-of-cycle state into a
// rounder-ready significand. A negative final remainder means the true
// result lies below the accumulated quotient, so the decremented twin is
// the correct truncation; any nonzero remainder makes the result inexact.
// The returned adjustment is the exponent correction from normalizing a
// below-one quotient.
func (u *Unit) DivSqrtResult(st IterState) (w *Wide, expAdjust int, sticky bool) {
	rem := st.WS.Add(st.WC)
	q := st.Q
	if sign128(rem) < 0 {
		q = st.QM
	}
	sticky = sign128(rem) != 0
	q = mask128(q, u.divBits+3)

	w = u.NewWide()
	l := len128(q)
	if l == 0 {
		return w, 0, sticky
	}
	expAdjust = l - 1 - u.divBits
	w.OrBits(q, w.size-1-l)
	return w, expAdjust, sticky
}
