package tx

// This file implements the CLVM serialization canonicality check used by the
// mempool's dedup-eligibility rule: two dedup spends of
// the same coin only merge at block-build time if their solutions serialize
// identically, so a non-canonical (but semantically equal) encoding must be
// rejected outright rather than silently treated as a duplicate.

// atomLengthPrefix describes one of CLVM's six atom length-prefix encodings:
// how many extra length bytes follow the lead byte, the mask that extracts
// the top length bits from the lead byte, and the minimum atom length for
// which this prefix form is the canonical (shortest) one.
type atomLengthPrefix struct {
	leadMask   byte
	leadTag    byte
	extraBytes int
	minValue   int
}

var atomPrefixes = []atomLengthPrefix{
	{leadMask: 0b11000000, leadTag: 0b10000000, extraBytes: 0, minValue: 1},
	{leadMask: 0b11100000, leadTag: 0b11000000, extraBytes: 1, minValue: 1 << 6},
	{leadMask: 0b11110000, leadTag: 0b11100000, extraBytes: 2, minValue: 1 << (5 + 8)},
	{leadMask: 0b11111000, leadTag: 0b11110000, extraBytes: 3, minValue: 1 << (4 + 8 + 8)},
	{leadMask: 0b11111100, leadTag: 0b11111000, extraBytes: 4, minValue: 1 << (3 + 8 + 8 + 8)},
	{leadMask: 0b11111110, leadTag: 0b11111100, extraBytes: 5, minValue: 1 << (2 + 8 + 8 + 8 + 8)},
}

// atomLength reads the length-prefixed atom starting at offset and reports
// how many bytes it (prefix + payload) occupies, and whether the prefix used
// the shortest possible encoding for that length.
func atomLength(buf []byte, offset int) (size int, canonical bool, ok bool) {
	if offset >= len(buf) {
		return 0, false, false
	}
	lead := buf[offset]
	for _, p := range atomPrefixes {
		if lead&p.leadMask != p.leadTag {
			continue
		}
		if offset+1+p.extraBytes > len(buf) {
			return 0, false, false
		}
		length := int(lead &^ p.leadMask)
		for i := 0; i < p.extraBytes; i++ {
			length = (length << 8) | int(buf[offset+1+i])
		}
		return 1 + p.extraBytes + length, length >= p.minValue, true
	}
	return 0, false, false
}

// IsCanonicalSerialization reports whether buf is a canonically-encoded CLVM
// program: every atom uses its shortest length-prefix form, pairs are encoded
// with the 0xFF pair tag, no CLVM back-references (0xFE) appear, and there is
// no trailing garbage. A non-canonical buffer may still decode to the same
// value, but two different encodings of the same value will not compare
// byte-equal, which is exactly the property the dedup merge rule depends on.
func IsCanonicalSerialization(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}

	offset := 0
	tokensLeft := 1
	for {
		if offset >= len(buf) {
			return false
		}
		b := buf[offset]

		switch {
		case b == 0xFF: // pair
			tokensLeft++
			offset++
			continue
		case b == 0xFE: // back-reference: never canonical
			return false
		case b <= 0x80: // small atom or NIL
			tokensLeft--
			offset++
		default:
			size, canonical, ok := atomLength(buf, offset)
			if !ok || !canonical {
				return false
			}
			// A single byte below 0x80 is its own encoding; a 0x81 prefix
			// in front of it is not the shortest form.
			if size == 2 && offset+1 < len(buf) && buf[offset+1] < 0x80 {
				return false
			}
			tokensLeft--
			offset += size
		}

		if tokensLeft == 0 {
			break
		}
	}

	return offset == len(buf)
}

// singletonMarker is the byte sequence a puzzle reveal must be prefixed
// with to structurally support fast forward. The mempool never interprets
// CLVM; the real structural check belongs to the executor, and this marker
// stands in for it.
var singletonMarker = []byte{0xff, 0x01} // a singleton wrapper's outer pair tag

// SupportsFastForward reports whether a coin spend's puzzle is structurally a
// singleton whose conditions don't depend on its particular parent, making it
// safe to transparently re-point at a newer instance of the same lineage.
func SupportsFastForward(cs CoinSpend) bool {
	if len(cs.PuzzleReveal) < len(singletonMarker) {
		return false
	}
	for i, b := range singletonMarker {
		if cs.PuzzleReveal[i] != b {
			return false
		}
	}
	return true
}
