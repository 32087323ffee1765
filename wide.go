package fpround

import (
	"github.com/shogo82148/int128"
)

// Wide is the shared wide significand register: an unsigned fixed-width bit
// vector with enough trailing bits that the guard, round and sticky
// positions of every configured format, and of the integer width, sit at
// offsets known from the configuration alone. It is written once by the
// producing datapath and read, never mutated, by the rounder.
type Wide struct {
	limbs []uint64 // little endian
	size  int      // width in bits
}

// NewWide returns a zeroed register sized for u.
func (u *Unit) NewWide() *Wide {
	return &Wide{
		limbs: make([]uint64, (u.wideSize+63)/64),
		size:  u.wideSize,
	}
}

// Size returns the register width in bits.
func (w *Wide) Size() int { return w.size }

// Bit returns bit i of w, counting from the least significant end.
func (w *Wide) Bit(i int) uint64 {
	if i < 0 || i >= w.size {
		return 0
	}
	return w.limbs[i>>6] >> uint(i&63) & 1
}

// SetBit sets bit i of w.
func (w *Wide) SetBit(i int) {
	if i < 0 || i >= w.size {
		return
	}
	w.limbs[i>>6] |= 1 << uint(i&63)
}

// OrBits ORs v into w with the least significant bit of v at position lsb.
// A negative lsb shifts v right instead; bits pushed below position zero
// are dropped.
func (w *Wide) OrBits(v int128.Uint128, lsb int) {
	if lsb < -128 {
		return
	}
	if lsb < 0 {
		v = v.Rsh(uint(-lsb))
		lsb = 0
	}
	w.orWord(v.L, lsb)
	w.orWord(v.H, lsb+64)
}

func (w *Wide) orWord(v uint64, i int) {
	if v == 0 || i >= w.size {
		return
	}
	k, off := i>>6, uint(i&63)
	w.limbs[k] |= v << off
	if off != 0 && k+1 < len(w.limbs) {
		w.limbs[k+1] |= v >> (64 - off)
	}
	w.trim()
}

func (w *Wide) trim() {
	if off := uint(w.size & 63); off != 0 {
		w.limbs[len(w.limbs)-1] &= 1<<off - 1
	}
}

// AnyBelow reports whether any bit strictly below position i is set.
// It is the sticky reduction: one OR over everything beneath a rounding
// position.
func (w *Wide) AnyBelow(i int) bool {
	if i <= 0 {
		return false
	}
	if i > w.size {
		i = w.size
	}
	k, off := i>>6, uint(i&63)
	for j := 0; j < k; j++ {
		if w.limbs[j] != 0 {
			return true
		}
	}
	return off != 0 && w.limbs[k]&(1<<off-1) != 0
}

// Field extracts bits hi down to lo, inclusive, right justified.
// The field must be at most 128 bits wide.
func (w *Wide) Field(hi, lo int) int128.Uint128 {
	width := hi - lo + 1
	if width <= 0 || width > 128 {
		panic("fpround: field width out of range")
	}
	var v int128.Uint128
	v.L = w.word64(lo)
	if width > 64 {
		v.H = w.word64(lo + 64)
	}
	switch {
	case width == 128:
	case width > 64:
		v.H &= 1<<uint(width-64) - 1
	case width == 64:
		v.H = 0
	default:
		v.H = 0
		v.L &= 1<<uint(width) - 1
	}
	return v
}

// word64 returns the 64 bits of w starting at position i, reading zeros
// beyond either end.
func (w *Wide) word64(i int) uint64 {
	if i <= -64 || i >= w.size {
		return 0
	}
	if i < 0 {
		return w.word64(0) << uint(-i)
	}
	k, off := i>>6, uint(i&63)
	v := w.limbs[k] >> off
	if off != 0 && k+1 < len(w.limbs) {
		v |= w.limbs[k+1] << (64 - off)
	}
	return v
}

// ShiftLeft shifts w left in place by n bits. Bits shifted past the top
// are dropped, as they are in the hardware register.
func (w *Wide) ShiftLeft(n int) {
	if n <= 0 {
		return
	}
	if n >= w.size {
		for i := range w.limbs {
			w.limbs[i] = 0
		}
		return
	}
	k, off := n>>6, uint(n&63)
	for i := len(w.limbs) - 1; i >= 0; i-- {
		var v uint64
		if i-k >= 0 {
			v = w.limbs[i-k] << off
			if off != 0 && i-k-1 >= 0 {
				v |= w.limbs[i-k-1] >> (64 - off)
			}
		}
		w.limbs[i] = v
	}
	w.trim()
}

// ShiftRightSticky shifts w right in place by n bits and reports whether
// any dropped bit was set.
func (w *Wide) ShiftRightSticky(n int) bool {
	if n <= 0 {
		return false
	}
	sticky := w.AnyBelow(n)
	if n >= w.size {
		for i := range w.limbs {
			w.limbs[i] = 0
		}
		return sticky
	}
	k, off := n>>6, uint(n&63)
	for i := 0; i < len(w.limbs); i++ {
		var v uint64
		if i+k < len(w.limbs) {
			v = w.limbs[i+k] >> off
			if off != 0 && i+k+1 < len(w.limbs) {
				v |= w.limbs[i+k+1] << (64 - off)
			}
		}
		w.limbs[i] = v
	}
	return sticky
}
