package transfer

// Bitmap is a compact bitset tracking which chunk indices have been written.
type Bitmap struct {
	bits uint64
	set  uint64
	data []byte
}

// NewBitmap allocates a bitmap sized for the given number of chunks.
func NewBitmap(bits uint64) *Bitmap {
	return &Bitmap{
		bits: bits,
		data: make([]byte, (bits+7)/8),
	}
}

// Len returns the number of bits in the bitmap.
func (b *Bitmap) Len() uint64 {
	if b == nil {
		return 0
	}
	return b.bits
}

// Set marks index i and reports whether it was previously clear.
// Out-of-range indices are ignored.
func (b *Bitmap) Set(i uint64) bool {
	if b == nil || i >= b.bits {
		return false
	}
	mask := byte(1) << (i % 8)
	if b.data[i/8]&mask != 0 {
		return false
	}
	b.data[i/8] |= mask
	b.set++
	return true
}

// Get reports whether index i is set.
func (b *Bitmap) Get(i uint64) bool {
	if b == nil || i >= b.bits {
		return false
	}
	return b.data[i/8]&(byte(1)<<(i%8)) != 0
}

// CountSet returns the number of set bits.
func (b *Bitmap) CountSet() uint64 {
	if b == nil {
		return 0
	}
	return b.set
}

// Complete reports whether every bit is set.
func (b *Bitmap) Complete() bool {
	return b.CountSet() == b.Len()
}

// Missing returns up to limit clear indices in increasing order.
// limit <= 0 means no limit.
func (b *Bitmap) Missing(limit int) []uint64 {
	if b == nil {
		return nil
	}
	var out []uint64
	for byteIdx, v := range b.data {
		if v == 0xFF {
			continue
		}
		for bit := uint64(0); bit < 8; bit++ {
			i := uint64(byteIdx)*8 + bit
			if i >= b.bits {
				return out
			}
			if v&(byte(1)<<bit) == 0 {
				out = append(out, i)
				if limit > 0 && len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}
