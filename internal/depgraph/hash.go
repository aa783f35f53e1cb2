package depgraph

// HashGenerator is the bit-mixing 64-bit hash used to derive content and
// identity checksums. a, b, c, d are the mutable accumulator state fed one
// byte at a time; e, f, g, h are fixed mixing constants chosen only for
// their seed values and never reassigned after construction.
type HashGenerator struct {
	a, b, c, d uint64
	e, f, g, h uint64
}

// NewHashGenerator returns a HashGenerator seeded with its fixed constants.
func NewHashGenerator() *HashGenerator {
	return &HashGenerator{
		a: 0x8C2A03D4,
		b: 0xF42B1583,
		c: 0xA6815E74,
		d: 0x634B20F6,
		e: 0x12C49B72,
		f: 0x06E1F489,
		g: 0xA8D24954,
		h: 0x19CF53AA,
	}
}

// FeedByte mixes one input byte (0..255, though any uint64 is accepted)
// into the accumulator state.
func (hg *HashGenerator) FeedByte(input uint64) {
	hg.a = hg.a ^ (input << ((hg.e >> 12) % 56))
	hg.b = hg.b ^ (input << ((hg.f >> 18) % 56))
	hg.c = hg.c ^ (input << ((hg.g >> 15) % 56))
	hg.d = hg.d ^ (input << ((hg.h >> 5) % 56))

	selE := (hg.a & hg.c) | (hg.b &^ hg.c)
	selF := (hg.c & hg.b) | (hg.d &^ hg.b)

	prodG := (selE >> 32) * (selF & 0xFFFFFFFF)
	prodH := (selF >> 32) * (selE & 0xFFFFFFFF)

	hg.a = hg.a ^ ((hg.b >> (input % 3)) + (hg.c >> ((prodH >> 25) % 4)))
	hg.b = hg.b ^ ((hg.c >> ((prodG >> 36) % 6)) + (hg.d >> ((input ^ 0b10101101) % 5)))
	hg.c = hg.c ^ prodG
	hg.d = hg.d ^ prodH
}

// GetHash64 returns the current 64-bit digest without consuming any state.
func (hg *HashGenerator) GetHash64() uint64 {
	return hg.a ^ (hg.b << 7) ^ (hg.c << 19) ^ (hg.d << 24)
}

// ChecksumText hashes text one Unicode code point at a time, each split
// into four bytes big-endian. Used for the identity checksum, which is
// derived from a source path concatenated with its compiler flags rather
// than raw file content.
func ChecksumText(text string) uint64 {
	hg := NewHashGenerator()
	for _, r := range text {
		c := uint64(uint32(r))
		hg.FeedByte((c >> 24) & 0xFF)
		hg.FeedByte((c >> 16) & 0xFF)
		hg.FeedByte((c >> 8) & 0xFF)
		hg.FeedByte(c & 0xFF)
	}
	return hg.GetHash64()
}

// ChecksumBytes hashes raw bytes one at a time. Used for the content
// checksum of a dependency's file, so unrelated whitespace/encoding
// differences in a text file still change the checksum exactly like any
// other byte-for-byte change would.
func ChecksumBytes(data []byte) uint64 {
	hg := NewHashGenerator()
	for _, b := range data {
		hg.FeedByte(uint64(b))
	}
	return hg.GetHash64()
}
