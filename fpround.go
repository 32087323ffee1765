// Package fpround implements the numeric finishing stage of a multi-format
// IEEE 754 binary floating-point unit: guard/round/sticky extraction and the
// final rounded pack, the shift and underflow prediction for conversions, and
// the digit-recurrence iterator that produces division and square-root
// quotients for the same rounding stage.
//
// The package is a pure computational core. Operands arrive already
// normalized; NaN and infinity screening, exception-flag assembly and
// pipeline control are the caller's responsibility. A Unit is configured
// once, like a hardware instance, and is safe for concurrent use except for
// Iter values, which hold the state of one in-flight divide or square root.
package fpround

// RoundingMode is one of the five IEEE 754 rounding directions.
// The values match the RISC-V frm encoding.
type RoundingMode uint8

const (
	RNE RoundingMode = iota // to nearest, ties to even
	RTZ                     // toward zero
	RDN                     // toward negative infinity
	RUP                     // toward positive infinity
	RMM                     // to nearest, ties to max magnitude
)

// OpKind tells the rounder which datapath produced the wide significand.
type OpKind uint8

const (
	FMA OpKind = iota
	DivSqrt
	CvtToInt
	CvtToFloat
)

// FormatSpec describes one IEEE 754 binary interchange format.
// Sel is the format selector code; the predefined formats use the RISC-V
// fmt encoding.
type FormatSpec struct {
	Sel       uint8
	ExpWidth  int
	FracWidth int
	Bias      int32
}

var (
	Binary32  = FormatSpec{Sel: 0, ExpWidth: 8, FracWidth: 23, Bias: 127}
	Binary64  = FormatSpec{Sel: 1, ExpWidth: 11, FracWidth: 52, Bias: 1023}
	Binary16  = FormatSpec{Sel: 2, ExpWidth: 5, FracWidth: 10, Bias: 15}
	Binary128 = FormatSpec{Sel: 3, ExpWidth: 15, FracWidth: 112, Bias: 16383}
)

// MaxExp returns the all-ones exponent field of f, the encoding used by
// infinities and NaNs.
func (f FormatSpec) MaxExp() uint32 {
	return 1<<uint(f.ExpWidth) - 1
}

// Config fixes the supported formats and the divider geometry for one
// instance of the unit. Like a hardware configuration it is validated once
// by New and never mutated afterwards.
type Config struct {
	// Formats lists 1 to 4 supported formats in ascending fraction width.
	// The widest one sizes the shared significand register.
	Formats []FormatSpec

	// IntWidth is the integer register width for conversions (XLEN).
	IntWidth int

	// Radix is the digit-recurrence radix, 2 or 4.
	Radix int

	// DigitsPerCycle is the number of recurrence stages chained per clock.
	DigitsPerCycle int
}

// view locates one format's fields inside the wide register. The offsets
// are computed once from the configuration; rounding indexes them at call
// time instead of branching per format.
type view struct {
	ok     bool
	nf     int
	fracHi int // fraction MSB, inclusive
	fracLo int // fraction LSB; the result's LSB for rounding
	guard  int
	round  int // sticky is the OR of everything below this position
}

// Unit is one configured instance of the finishing stage.
type Unit struct {
	cfg      Config
	ne       int // shared exponent width, from the widest format
	nfMax    int
	wideSize int     // width of the shared significand register
	divBits  int     // fractional bits of the divider's fixed-point frame
	log2r    int     // 1 for radix 2, 2 for radix 4
	views    [4]view // indexed by format selector
	intView  view
}

// New validates cfg and derives the register sizes and per-format bit
// offsets. It panics on an impossible configuration.
func New(cfg Config) *Unit {
	if n := len(cfg.Formats); n < 1 || n > 4 {
		panic("fpround: between 1 and 4 formats required")
	}
	if cfg.IntWidth < 8 || cfg.IntWidth > 64 {
		panic("fpround: integer width out of range")
	}
	u := &Unit{cfg: cfg}
	switch cfg.Radix {
	case 2:
		u.log2r = 1
	case 4:
		u.log2r = 2
	default:
		panic("fpround: radix must be 2 or 4")
	}
	if cfg.DigitsPerCycle < 1 || cfg.DigitsPerCycle > 8 {
		panic("fpround: digits per cycle out of range")
	}

	prev := 0
	for _, f := range cfg.Formats {
		if f.Sel > 3 {
			panic("fpround: format selector out of range")
		}
		if u.views[f.Sel].ok {
			panic("fpround: duplicate format selector")
		}
		if f.FracWidth <= prev {
			panic("fpround: formats must have strictly increasing fraction widths")
		}
		prev = f.FracWidth
		if f.ExpWidth > u.ne {
			u.ne = f.ExpWidth
		}
		u.views[f.Sel].ok = true
		u.views[f.Sel].nf = f.FracWidth
	}
	u.nfMax = prev

	// The divider generates whole digit groups; give it a few bits beyond
	// the widest fraction so guard, round and sticky are always real bits.
	group := u.log2r * cfg.DigitsPerCycle
	u.divBits = (u.nfMax + 6 + group - 1) / group * group
	if u.divBits > 118 {
		panic("fpround: divider frame exceeds 128 bits")
	}

	u.wideSize = 3*u.nfMax + 8
	if s := cfg.IntWidth + u.nfMax + 4; s > u.wideSize {
		u.wideSize = s
	}
	if s := u.divBits + u.nfMax + 2; s > u.wideSize {
		u.wideSize = s
	}

	// One shared register, one view per interpretation. Bit wideSize-1 is
	// the overflow slot, bit wideSize-2 holds the leading one of a
	// normalized significand, and each format's fraction sits directly
	// below it.
	for i := range u.views {
		if !u.views[i].ok {
			continue
		}
		nf := u.views[i].nf
		u.views[i].fracHi = u.wideSize - 3
		u.views[i].fracLo = u.wideSize - 2 - nf
		u.views[i].guard = u.wideSize - 3 - nf
		u.views[i].round = u.wideSize - 4 - nf
	}
	u.intView = view{
		ok:     true,
		nf:     cfg.IntWidth,
		fracHi: u.wideSize - 1,
		fracLo: u.wideSize - cfg.IntWidth,
		guard:  u.wideSize - cfg.IntWidth - 1,
		round:  u.wideSize - cfg.IntWidth - 2,
	}
	return u
}

// WideSize returns the width in bits of the shared significand register.
func (u *Unit) WideSize() int { return u.wideSize }

// DivBits returns the number of fractional bits in the divider's
// fixed-point frame.
func (u *Unit) DivBits() int { return u.divBits }

func (u *Unit) viewFor(op OpKind, sel uint8) view {
	if op == CvtToInt {
		return u.intView
	}
	if sel > 3 || !u.views[sel].ok {
		panic("fpround: unsupported format selector")
	}
	return u.views[sel]
}

func (u *Unit) format(sel uint8) FormatSpec {
	for _, f := range u.cfg.Formats {
		if f.Sel == sel {
			return f
		}
	}
	panic("fpround: unsupported format selector")
}
