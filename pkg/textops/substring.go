package textops

import (
	"fmt"
	"math"
)

// BinSubstring implements SQL SUBSTRING(target FROM pos [FOR length]) with pos and length in bytes.
// useLen=false means the FOR clause is absent and the rest of target is taken.
// A start before the string eats into the length, so SUBSTRING('abcdef' FROM -1 FOR 4) is 'ab'.
// The result is a sub-view of target, nothing is copied.
func BinSubstring(target ByteView, pos, length int, useLen bool) (ByteView, error) {
	if useLen && length < 0 {
		return ByteView{}, negativeLengthErr(length)
	}

	start, length := clampStart(pos, length)
	if useLen && length == 0 {
		return ByteView{}, nil
	}
	if start >= target.Len() {
		return ByteView{}, nil
	}
	if !useLen || length >= target.Len()-start {
		return target.Slice(start, target.Len()), nil
	}
	return target.Slice(start, start+length), nil
}

// UTF8Substring is BinSubstring with pos and length counted in codepoints.
// Returns an empty view if target has fewer than pos codepoints.
func UTF8Substring(target ByteView, pos, length int, useLen bool) (ByteView, error) {
	if useLen && length < 0 {
		return ByteView{}, negativeLengthErr(length)
	}

	startCP, length := clampStart(pos, length)
	if useLen && length == 0 {
		return ByteView{}, nil
	}

	// find the byte offset of the startCP-th codepoint (0-based)
	startIdx, cp := 0, -1
	for i := 0; i < target.Len() && cp < startCP; i++ {
		if IsLeadByte(target.b[i]) {
			cp++
		}
		startIdx = i
	}
	if cp < startCP {
		return ByteView{}, nil
	}

	if !useLen {
		return target.Slice(startIdx, target.Len()), nil
	}

	consumed := 0
	for i := startIdx; i < target.Len(); i++ {
		if !IsLeadByte(target.b[i]) {
			continue
		}
		if consumed == length {
			return target.Slice(startIdx, i), nil
		}
		consumed++
	}
	return target.Slice(startIdx, target.Len()), nil
}

// clampStart converts 1-based pos to a zero-based start. A start before the beginning is clamped to 0
// and the overshoot is taken out of length, never below 0.
func clampStart(pos, length int) (start, adjLength int) {
	if pos >= 1 {
		return pos - 1, length
	}
	if length <= 0 {
		return 0, 0
	}
	return 0, max(0, length+pos-1) // length > 0 and pos < 1, length+pos can't overflow
}

// addSat adds a and b, saturating at math.MinInt and math.MaxInt
func addSat(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}

func negativeLengthErr(length int) error {
	return fmt.Errorf("negative substring length %d: %w", length, ErrInvalidArgument)
}
