package fpround

import (
	"github.com/shogo82148/int128"
)

// ShiftIn carries one conversion's operands into the shift and underflow
// unit. Exactly one of the three alignment modes applies per operation:
// ToInt selects the integer alignment, Subnorm (with ToInt and IntToFloat
// clear) the right-justified subnormal alignment, and anything else the
// normal left alignment.
type ShiftIn struct {
	// Zero marks a zero source operand.
	Zero bool

	// ToInt marks a float to integer conversion.
	ToInt bool

	// IntToFloat marks an integer to float conversion. The mantissa is
	// then the raw integer magnitude, IntWidth bits wide.
	IntToFloat bool

	// Fmt selects the output format for float results.
	Fmt uint8

	// Exp is the candidate exponent from the external exponent logic:
	// the biased exponent of a float result, or the left shift count for
	// a to-integer conversion. Its sign bit marks the
	// shifted-entirely-below-the-integer case.
	Exp int32

	// Mantissa is the source significand in 1.NFmax fixed point (the
	// leading one at bit NFmax), or the raw integer for IntToFloat.
	Mantissa int128.Uint128

	// LZC is the leading zero count supplied by the external normalizer:
	// zero for a normalized float source, IntWidth-1-log2(x) for an
	// integer source.
	LZC int

	// Subnorm marks a float result predicted subnormal or underflowed.
	Subnorm bool
}

// CvtShift builds the wide significand for a conversion and predicts
// underflow. Underflow is predicted exactly when the candidate exponent,
// as a signed value, is below the negated fraction width of the selected
// output format; it is never predicted for a zero operand or an integer
// to float conversion.
func (u *Unit) CvtShift(in ShiftIn) (*Wide, bool) {
	w := u.NewWide()
	switch {
	case in.ToInt:
		// Line the mantissa up against the integer field: the prepared
		// leading one sits just below the integer LSB and the left shift
		// count moves it to the weight the exponent calls for. A negative
		// count means the whole value sits below the integer; the shifter
		// holds at zero, which would leave the leading one in the round
		// slot and force a spurious round-up. Clear it there and fold it
		// into the bit below so the result stays inexact instead.
		m := in.Mantissa
		shamt := int(in.Exp)
		if in.Exp < 0 {
			if bit128(m, u.nfMax) != 0 {
				m = setBit128(clearBit128(m, u.nfMax), u.nfMax-1)
			}
			shamt = 0
		}
		w.OrBits(m, w.size-u.cfg.IntWidth-1-u.nfMax)
		if shamt > w.size {
			shamt = w.size
		}
		w.ShiftLeft(shamt)
		return w, false

	case in.Subnorm && !in.IntToFloat:
		// The result is denormal: present the mantissa already right
		// justified, the leading one 1-exp positions below its normal
		// slot, so the fraction field reads out denormalized. Bits pushed
		// past the register are covered by the underflow prediction.
		rsh := 1 - int(in.Exp)
		if rsh < 0 {
			rsh = 0
		}
		w.OrBits(in.Mantissa, w.size-2-rsh-u.nfMax)

	default:
		// Normal alignment: the externally supplied leading zero count
		// left-justifies the mantissa's leading one into its slot.
		msb := u.nfMax
		if in.IntToFloat {
			msb = u.cfg.IntWidth - 1
		}
		w.OrBits(in.Mantissa, w.size-2-(msb-in.LZC))
	}

	nf := int32(u.viewFor(CvtToFloat, in.Fmt).nf)
	uf := !in.Zero && !in.IntToFloat && in.Exp < -nf
	return w, uf
}
