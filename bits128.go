package fpround

import (
	"math/bits"

	"github.com/shogo82148/int128"
)

// Small two's-complement helpers over int128.Uint128. The divider carries
// signed quantities in the same unsigned vectors the hardware registers
// would, so negation and sign tests work on the raw bit pattern.

func bit128(v int128.Uint128, i int) uint64 {
	if i < 64 {
		return v.L >> uint(i) & 1
	}
	return v.H >> uint(i-64) & 1
}

func setBit128(v int128.Uint128, i int) int128.Uint128 {
	if i < 64 {
		v.L |= 1 << uint(i)
	} else {
		v.H |= 1 << uint(i-64)
	}
	return v
}

func clearBit128(v int128.Uint128, i int) int128.Uint128 {
	if i < 64 {
		v.L &^= 1 << uint(i)
	} else {
		v.H &^= 1 << uint(i-64)
	}
	return v
}

// mask128 keeps the low n bits of v.
func mask128(v int128.Uint128, n int) int128.Uint128 {
	switch {
	case n <= 0:
		return int128.Uint128{}
	case n < 64:
		v.L &= 1<<uint(n) - 1
		v.H = 0
	case n == 64:
		v.H = 0
	case n < 128:
		v.H &= 1<<uint(n-64) - 1
	}
	return v
}

// ones128 returns n set bits.
func ones128(n int) int128.Uint128 {
	return mask128(int128.Uint128{H: ^uint64(0), L: ^uint64(0)}, n)
}

func neg128(v int128.Uint128) int128.Uint128 {
	return int128.Uint128{}.Sub(v)
}

// sign128 interprets v as two's complement: -1, 0 or +1.
func sign128(v int128.Uint128) int {
	if v.H>>63 != 0 {
		return -1
	}
	if v == (int128.Uint128{}) {
		return 0
	}
	return 1
}

func abs128(v int128.Uint128) int128.Uint128 {
	if sign128(v) < 0 {
		return neg128(v)
	}
	return v
}

// mulDigit multiplies v by a small signed digit in two's complement.
func mulDigit(v int128.Uint128, d int) int128.Uint128 {
	neg := d < 0
	if neg {
		d = -d
	}
	var r int128.Uint128
	switch d {
	case 0:
	case 1:
		r = v
	case 2:
		r = v.Lsh(1)
	case 3:
		r = v.Lsh(1).Add(v)
	case 4:
		r = v.Lsh(2)
	default:
		panic("fpround: digit out of range")
	}
	if neg {
		r = neg128(r)
	}
	return r
}

// len128 returns the position of the highest set bit plus one.
func len128(v int128.Uint128) int {
	if v.H != 0 {
		return 64 + bits.Len64(v.H)
	}
	return bits.Len64(v.L)
}
