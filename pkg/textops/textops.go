// Package textops implements SQL POSITION, SUBSTRING and OVERLAY over raw bytes.
// Every operation comes in a binary flavour, where positions and lengths count bytes,
// and a character flavour, where they count UTF-8 codepoints. Codepoints are never decoded,
// they are counted by lead bytes, so malformed input is walked through, not rejected.
// Positions are 1-based and 0 means "not found".
//
// All functions are pure and safe for concurrent use as long as the viewed buffers are not mutated.
package textops

import "errors"

// ErrInvalidArgument is returned when an explicit substring length is negative.
var ErrInvalidArgument = errors.New("invalid argument")

// IsLeadByte reports whether b starts a UTF-8 codepoint, i.e. it is not a 10xxxxxx continuation byte.
func IsLeadByte(b byte) bool {
	return b&0xc0 != 0x80
}

// UTF8Length counts codepoints in the byte range [start, end) of v.
// The range is clamped to the view, an empty or inverted range counts 0.
func UTF8Length(v ByteView, start, end int) int {
	start, end = max(start, 0), min(end, v.Len())
	if start >= end {
		return 0
	}
	n := 0
	for _, b := range v.b[start:end] {
		if IsLeadByte(b) {
			n++
		}
	}
	return n
}

// CharLength counts codepoints of the whole view.
func CharLength(v ByteView) int {
	return UTF8Length(v, 0, v.Len())
}

// BinPosition returns the 1-based byte position of the first occurrence of needle in haystack,
// or 0 if there is none. An empty needle is found at 1, even in an empty haystack.
func BinPosition(needle, haystack ByteView) int {
	if needle.Len() == 0 {
		return 1
	}
	i, j := 0, 0
	for {
		if j == needle.Len() {
			return i + 1
		}
		if i+j == haystack.Len() {
			return 0
		}
		if haystack.b[i+j] == needle.b[j] {
			j++
			continue
		}
		i++
		j = 0
	}
}

// UTF8Position returns the 1-based codepoint position of needle in haystack, or 0 if there is none.
func UTF8Position(needle, haystack ByteView) int {
	bpos := BinPosition(needle, haystack)
	if bpos == 0 {
		return 0
	}
	return UTF8Length(haystack, 0, bpos-1) + 1
}
